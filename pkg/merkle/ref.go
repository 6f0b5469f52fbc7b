package merkle

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/vecbench/vdfetch/pkg/fetcherr"
	"github.com/vecbench/vdfetch/pkg/fetchconst"
	"github.com/vecbench/vdfetch/pkg/merklehash"
	"github.com/vecbench/vdfetch/pkg/shape"
)

// DataSource yields a tree's leaf chunks in order. Build reads exactly
// Shape.LeafCount chunks from it, each of the length Shape.ForLeaf(i)
// reports.
type DataSource interface {
	// ReadChunk returns the bytes for leaf i.
	ReadChunk(i int64) ([]byte, error)
}

// Ref is the immutable reference tree (C3): a fully populated array of
// hashes built once from an authoritative data source and shipped as a
// sidecar thereafter.
type Ref struct {
	shape  shape.Shape
	hashes []merklehash.Hash
}

// Build computes leaf hashes from src in order, then internal hashes
// bottom-up, per §4.3.
func Build(totalContentSize int64, src DataSource) (*Ref, error) {
	sh, err := shape.Of(totalContentSize)
	if err != nil {
		return nil, err
	}

	hashes := make([]merklehash.Hash, sh.TotalNodeCount)

	for i := int64(0); i < sh.CapLeafCount; i++ {
		nodeIdx := sh.LeafNodeIndex(i)
		if i >= sh.LeafCount {
			hashes[nodeIdx] = merklehash.ZeroHash
			continue
		}
		chunk, err := src.ReadChunk(i)
		if err != nil {
			return nil, fmt.Errorf("merkle: read leaf %d: %w", i, err)
		}
		_, length, err := sh.ForLeaf(i)
		if err != nil {
			return nil, err
		}
		if int64(len(chunk)) != length {
			return nil, fmt.Errorf("merkle: leaf %d: data source returned %d bytes, want %d", i, len(chunk), length)
		}
		hashes[nodeIdx] = merklehash.Chunk(chunk)
	}

	for n := sh.InternalNodeCount - 1; n >= 0; n-- {
		left, right := shape.ChildrenOf(n)
		hashes[n] = merklehash.Combine(hashes[left], hashes[right])
	}

	return &Ref{shape: sh, hashes: hashes}, nil
}

// Save writes the reference layout of §3.5 with an all-zero bitset.
func (r *Ref) Save(path string) error {
	if err := verifyHashArrayLength(r.shape, r.hashes); err != nil {
		return fetcherr.InvalidFormat("%v", err)
	}
	return writeTreeFile(path, treeFile{
		shape:  r.shape,
		hashes: r.hashes,
		bits:   bitset.New(uint(r.shape.LeafCount)),
		magic:  fetchconst.MagicReference,
	})
}

// Load reads and validates a reference file per §4.3.
func Load(path string) (*Ref, error) {
	tf, err := readTreeFile(path, fetchconst.MagicReference)
	if err != nil {
		return nil, err
	}
	return &Ref{shape: tf.shape, hashes: tf.hashes}, nil
}

// Shape returns the tree's derived geometry.
func (r *Ref) Shape() shape.Shape { return r.shape }

// GetRoot returns the hash of node 0.
func (r *Ref) GetRoot() merklehash.Hash { return r.hashes[0] }

// GetHashForLeaf returns the hash of leaf i, bounds-checked.
func (r *Ref) GetHashForLeaf(i int64) (merklehash.Hash, error) {
	if i < 0 || i >= r.shape.LeafCount {
		return merklehash.Hash{}, fetcherr.OutOfRange("leaf index %d out of range [0,%d)", i, r.shape.LeafCount)
	}
	return r.hashes[r.shape.LeafNodeIndex(i)], nil
}

// GetHashForInternal returns the hash of internal node n, bounds-checked.
func (r *Ref) GetHashForInternal(n int64) (merklehash.Hash, error) {
	if n < 0 || n >= r.shape.InternalNodeCount {
		return merklehash.Hash{}, fetcherr.OutOfRange("internal node %d out of range [0,%d)", n, r.shape.InternalNodeCount)
	}
	return r.hashes[n], nil
}

// HashForNode returns the hash at the given flattened-tree node index
// (covers both internal and leaf nodes), bounds-checked.
func (r *Ref) HashForNode(n int64) (merklehash.Hash, error) {
	if n < 0 || n >= r.shape.TotalNodeCount {
		return merklehash.Hash{}, fetcherr.OutOfRange("node index %d out of range [0,%d)", n, r.shape.TotalNodeCount)
	}
	return r.hashes[n], nil
}

package chunkedfile

import (
	"github.com/vecbench/vdfetch/pkg/fetcherr"
	"github.com/vecbench/vdfetch/pkg/merklehash"
	"github.com/vecbench/vdfetch/pkg/scheduler"
	"github.com/vecbench/vdfetch/pkg/shape"
)

// leafRangeForTask returns the inclusive leaf index range a task's byte
// range covers.
func (cf *ChunkedFile) leafRangeForTask(task scheduler.Task) (first, last int64, err error) {
	first, err = cf.sh.ChunkIndexForOffset(task.ByteRange.Start)
	if err != nil {
		return 0, 0, err
	}
	last, err = cf.sh.ChunkIndexForOffset(task.ByteRange.End - 1)
	if err != nil {
		return 0, 0, err
	}
	return first, last, nil
}

// verifySubtree recomputes the hash of task.NodeIndex's subtree from the
// freshly fetched bytes and compares it against the reference tree. A leaf
// task is the degenerate single-node case of the same recursion.
func (cf *ChunkedFile) verifySubtree(task scheduler.Task, data []byte) error {
	want, err := cf.ref.HashForNode(task.NodeIndex)
	if err != nil {
		return err
	}
	got, err := cf.hashNodeFromData(task.NodeIndex, task.ByteRange.Start, data)
	if err != nil {
		return err
	}
	if got != want {
		return fetcherr.HashMismatch("node %d: fetched bytes do not match reference hash", task.NodeIndex)
	}
	return nil
}

// hashNodeFromData mirrors MerkleRef.Build's bottom-up combine, but reads
// leaf bytes from a just-fetched buffer (offset by base) instead of a
// DataSource.
func (cf *ChunkedFile) hashNodeFromData(node, base int64, data []byte) (merklehash.Hash, error) {
	if node >= cf.sh.InternalNodeCount {
		i := node - cf.sh.InternalNodeCount
		off, length, err := cf.sh.ForLeaf(i)
		if err != nil {
			return merklehash.Hash{}, err
		}
		local := off - base
		if local < 0 || local+length > int64(len(data)) {
			return merklehash.Hash{}, fetcherr.InvalidFormat("leaf %d falls outside fetched range", i)
		}
		return merklehash.Chunk(data[local : local+length]), nil
	}

	left, right := shape.ChildrenOf(node)
	lh, err := cf.hashNodeFromData(left, base, data)
	if err != nil {
		return merklehash.Hash{}, err
	}
	rh, err := cf.hashNodeFromData(right, base, data)
	if err != nil {
		return merklehash.Hash{}, err
	}
	return merklehash.Combine(lh, rh), nil
}

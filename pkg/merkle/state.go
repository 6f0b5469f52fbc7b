package merkle

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gofrs/flock"
	"github.com/vecbench/vdfetch/pkg/fetcherr"
	"github.com/vecbench/vdfetch/pkg/fetchconst"
	"github.com/vecbench/vdfetch/pkg/merklehash"
	"github.com/vecbench/vdfetch/pkg/shape"
)

// State is the mutable, persisted tree (C4): the reference hashes plus a
// per-leaf validity bitmap, mutated monotonically throughout a session.
//
// The in-memory bitset and hash array are guarded by mu; the on-disk
// advisory lock (lockPath, via gofrs/flock) is acquired only around the
// persistence step, per the coarse-lock redesign note in §9.
type State struct {
	mu   sync.RWMutex
	sh   shape.Shape
	hash []merklehash.Hash
	bits *bitset.BitSet

	path     string
	lockPath string
}

// CreateFromRef writes a state file seeded with ref's hashes and an
// all-zero bitmap, per §4.4.
func CreateFromRef(ref *Ref, path, lockPath string) (*State, error) {
	s := &State{
		sh:       ref.shape,
		hash:     append([]merklehash.Hash(nil), ref.hashes...),
		bits:     bitset.New(uint(ref.shape.LeafCount)),
		path:     path,
		lockPath: lockPath,
	}
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadState reads a state file; it refuses to open a file whose footer
// magic identifies it as a reference file.
func LoadState(path, lockPath string) (*State, error) {
	tf, err := readTreeFile(path, fetchconst.MagicState)
	if err != nil {
		return nil, err
	}
	return &State{sh: tf.shape, hash: tf.hashes, bits: tf.bits, path: path, lockPath: lockPath}, nil
}

// Shape returns the tree's derived geometry.
func (s *State) Shape() shape.Shape { return s.sh }

// GetValidBits returns a snapshot clone of the validity bitmap.
func (s *State) GetValidBits() *bitset.BitSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bits.Clone()
}

// IsValid reports whether leaf i has been verified and persisted.
func (s *State) IsValid(i int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bits.Test(uint(i))
}

// VerifyAndMark hashes bytes, compares against ref's recorded hash for
// leaf i, and on a match sets the validity bit under an exclusive lock
// and persists. On mismatch it returns a *fetcherr.FetchError of kind
// HashMismatch and leaves the bit unchanged, per §4.4.
func (s *State) VerifyAndMark(i int64, data []byte, ref *Ref) error {
	if i < 0 || i >= s.sh.LeafCount {
		return fetcherr.OutOfRange("leaf index %d out of range [0,%d)", i, s.sh.LeafCount)
	}

	want, err := ref.GetHashForLeaf(i)
	if err != nil {
		return err
	}
	got := merklehash.Chunk(data)
	if got != want {
		return fetcherr.HashMismatch("leaf %d: hash mismatch", i)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bits.Test(uint(i)) {
		// Calling VerifyAndMark twice with the correct bytes is a no-op.
		return nil
	}
	s.bits.Set(uint(i))
	if err := s.persistLocked(); err != nil {
		s.bits.Clear(uint(i))
		return err
	}
	return nil
}

// Flush is an explicit durability boundary; it re-persists the current
// in-memory state even if no mutation is pending.
func (s *State) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Close releases resources. The on-disk lock file itself is acquired and
// released per persistence step, so Close has nothing to unlock; it
// exists for symmetry with ChunkedFile.close() and future resource growth.
func (s *State) Close() error {
	return nil
}

// persistLocked writes the current in-memory hashes and bitset to disk.
// Callers must hold s.mu. Acquiring the cross-process file lock happens
// inside this call so that hashing (the expensive part) never happens
// while holding it, per §4.4's ordering note.
func (s *State) persistLocked() error {
	fl := flock.New(s.lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil || !locked {
		return fetcherr.IoError(err, "acquire state lock %s", s.lockPath)
	}
	defer fl.Unlock()

	return writeTreeFile(s.path, treeFile{
		shape:  s.sh,
		hashes: s.hash,
		bits:   s.bits,
		magic:  fetchconst.MagicState,
	})
}

// Invalidate rewrites the whole state file with an all-zero bitmap,
// the only sanctioned way to clear a previously-set bit (§4.4).
func (s *State) Invalidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bits = bitset.New(uint(s.sh.LeafCount))
	return s.persistLocked()
}

package merkle

import (
	"path/filepath"
	"testing"

	"github.com/vecbench/vdfetch/pkg/fetchconst"
	"github.com/vecbench/vdfetch/pkg/fetcherr"
	"github.com/vecbench/vdfetch/pkg/shape"
)

// fixedSource implements DataSource over an in-memory buffer, splitting it
// according to the shape computed for its own length.
type fixedSource struct{ data []byte }

func (f *fixedSource) ReadChunk(i int64) ([]byte, error) {
	sh, err := shape.Of(int64(len(f.data)))
	if err != nil {
		return nil, err
	}
	off, length, err := sh.ForLeaf(i)
	if err != nil {
		return nil, err
	}
	return f.data[off : off+length], nil
}

func TestBuildAndRoundTrip(t *testing.T) {
	data := []byte("ABCDEFGHIJ")
	src := &fixedSource{data: data}

	ref, err := Build(int64(len(data)), src)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "F.mref")
	if err := ref.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.GetRoot() != ref.GetRoot() {
		t.Fatal("round-tripped root hash differs")
	}
	for i := int64(0); i < ref.shape.LeafCount; i++ {
		a, _ := ref.GetHashForLeaf(i)
		b, _ := loaded.GetHashForLeaf(i)
		if a != b {
			t.Fatalf("leaf %d hash differs after round-trip", i)
		}
	}
}

func TestLoadRejectsWrongMagic(t *testing.T) {
	data := []byte("hello world")
	src := &fixedSource{data: data}
	ref, err := Build(int64(len(data)), src)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	refPath := filepath.Join(dir, "F.mref")
	if err := ref.Save(refPath); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(filepath.Join(dir, "nonexistent")); err == nil {
		t.Fatal("expected error loading nonexistent file")
	}

	// A state file created from this ref must be rejected by Load (the
	// reference loader), since its magic identifies it as state, not
	// reference.
	statePath := filepath.Join(dir, "F.mrkl")
	lockPath := filepath.Join(dir, "F.lock")
	if _, err := CreateFromRef(ref, statePath, lockPath); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(statePath); err == nil {
		t.Fatal("expected magic mismatch loading a state file as a reference")
	}
}

func TestVerifyAndMarkMismatch(t *testing.T) {
	data := []byte("ABCDEFGHIJ")
	src := &fixedSource{data: data}
	ref, err := Build(int64(len(data)), src)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	st, err := CreateFromRef(ref, filepath.Join(dir, "F.mrkl"), filepath.Join(dir, "F.lock"))
	if err != nil {
		t.Fatal(err)
	}

	err = st.VerifyAndMark(0, []byte("XXXX"), ref)
	if !fetcherr.Is(err, fetcherr.KindHashMismatch) {
		t.Fatalf("expected HashMismatch, got %v", err)
	}
	if st.IsValid(0) {
		t.Fatal("leaf should remain invalid after a mismatch")
	}
}

func TestVerifyAndMarkPersistsAcrossReload(t *testing.T) {
	// Two full chunks plus a short third under the 1 MiB base chunk size,
	// so leaf 0 is a whole chunk and leaf 1 exists as an unrelated leaf.
	data := make([]byte, 2*fetchconst.BaseChunkSize+7)
	for i := range data {
		data[i] = byte(i)
	}
	leaf0 := data[:fetchconst.BaseChunkSize]
	src := &fixedSource{data: data}
	ref, err := Build(int64(len(data)), src)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	statePath := filepath.Join(dir, "F.mrkl")
	lockPath := filepath.Join(dir, "F.lock")

	st, err := CreateFromRef(ref, statePath, lockPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.VerifyAndMark(0, leaf0, ref); err != nil {
		t.Fatal(err)
	}
	// Second call with correct bytes is a no-op.
	if err := st.VerifyAndMark(0, leaf0, ref); err != nil {
		t.Fatal(err)
	}

	reloaded, err := LoadState(statePath, lockPath)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.IsValid(0) {
		t.Fatal("validity bit did not survive reload")
	}
	if reloaded.IsValid(1) {
		t.Fatal("unrelated leaf should still be invalid")
	}
}

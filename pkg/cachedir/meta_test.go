package cachedir

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "F.meta")

	want := Meta{
		OriginURL:      "https://example.com/datasets/sift1m.fvecs",
		ETag:           `"abc123"`,
		LastModified:   "Wed, 21 Oct 2015 07:28:00 GMT",
		FirstSeenUnix:  1700000000,
		LastVerifyUnix: 1700003600,
		DatasetTag:     "sift1m",
	}

	if err := WriteMeta(path, want); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	got, err := ReadMeta(path)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestWriteMetaIsCanonicalAndStable(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "a.meta")
	path2 := filepath.Join(dir, "b.meta")

	m := Meta{OriginURL: "https://example.com/x.fvecs", FirstSeenUnix: 1}
	if err := WriteMeta(path1, m); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	if err := WriteMeta(path2, m); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	a, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	b, err := os.ReadFile(path2)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same metadata produced different encoded bytes: %x != %x", a, b)
	}
}

func TestReadMetaMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadMeta(filepath.Join(dir, "does-not-exist.meta")); err == nil {
		t.Fatal("ReadMeta of missing file returned nil error")
	}
}

func TestReadMetaCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.meta")
	if err := os.WriteFile(path, []byte{0xff, 0x00, 0x11}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadMeta(path); err == nil {
		t.Fatal("ReadMeta of corrupt file returned nil error")
	}
}

func TestReadMetaRejectsMissingOriginURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no-origin.meta")
	if err := WriteMeta(path, Meta{FirstSeenUnix: 1}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	if _, err := ReadMeta(path); err == nil {
		t.Fatal("ReadMeta accepted a sidecar with no origin_url")
	}
}

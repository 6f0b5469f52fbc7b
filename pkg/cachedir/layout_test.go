package cachedir

import (
	"path/filepath"
	"testing"
)

func TestSubdirForIsDeterministic(t *testing.T) {
	l := &Layout{Root: "/tmp/cache"}
	a, err := l.SubdirFor("https://example.com/datasets/base.fvecs")
	if err != nil {
		t.Fatalf("SubdirFor: %v", err)
	}
	b, err := l.SubdirFor("https://example.com/datasets/base.fvecs")
	if err != nil {
		t.Fatalf("SubdirFor: %v", err)
	}
	if a != b {
		t.Fatalf("SubdirFor not deterministic: %s != %s", a, b)
	}
}

func TestSubdirForNFCEquivalentURLsCollide(t *testing.T) {
	l := &Layout{Root: "/tmp/cache"}
	// "e with acute" as a single precomposed codepoint (U+00E9) vs "e"
	// followed by a combining acute accent (U+0065 U+0301). Built from
	// runes so the test does not depend on the source file's own
	// normalization of a literal.
	composed := "https://example.com/" + string(rune(0x00e9)) + "/base.fvecs"
	decomposed := "https://example.com/" + "e" + string(rune(0x0301)) + "/base.fvecs"

	a, err := l.SubdirFor(composed)
	if err != nil {
		t.Fatalf("SubdirFor: %v", err)
	}
	b, err := l.SubdirFor(decomposed)
	if err != nil {
		t.Fatalf("SubdirFor: %v", err)
	}
	if a != b {
		t.Fatalf("NFC-equivalent URLs mapped to different subpaths: %s != %s", a, b)
	}
}

func TestSubdirForDistinctURLsDiffer(t *testing.T) {
	l := &Layout{Root: "/tmp/cache"}
	a, _ := l.SubdirFor("https://example.com/a.fvecs")
	b, _ := l.SubdirFor("https://example.com/b.fvecs")
	if a == b {
		t.Fatalf("distinct URLs collided at %s", a)
	}
}

func TestSubdirForKeepsHostReadable(t *testing.T) {
	l := &Layout{Root: "/tmp/cache"}
	dir, err := l.SubdirFor("https://example.com/a.fvecs")
	if err != nil {
		t.Fatalf("SubdirFor: %v", err)
	}
	want := filepath.Join("/tmp/cache", "example.com")
	if filepath.Dir(dir) != want {
		t.Fatalf("dir = %s, want parent %s", dir, want)
	}
}

func TestPathsForCreatesDirAndFixedNames(t *testing.T) {
	root := t.TempDir()
	l, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	paths, err := l.PathsFor("https://example.com/datasets/sift1m.fvecs")
	if err != nil {
		t.Fatalf("PathsFor: %v", err)
	}
	for _, p := range []string{paths.Data, paths.Ref, paths.State, paths.Lock, paths.Meta} {
		if filepath.Dir(p) != filepath.Dir(paths.Data) {
			t.Fatalf("path %s not colocated with %s", p, paths.Data)
		}
	}
	if filepath.Base(paths.Data) != "F" {
		t.Fatalf("Data base = %s, want F", filepath.Base(paths.Data))
	}
	if filepath.Base(paths.Ref) != "F.mref" {
		t.Fatalf("Ref base = %s, want F.mref", filepath.Base(paths.Ref))
	}
	if filepath.Base(paths.State) != "F.mrkl" {
		t.Fatalf("State base = %s, want F.mrkl", filepath.Base(paths.State))
	}
	if filepath.Base(paths.Lock) != "F.lock" {
		t.Fatalf("Lock base = %s, want F.lock", filepath.Base(paths.Lock))
	}
	if filepath.Base(paths.Meta) != "F.meta" {
		t.Fatalf("Meta base = %s, want F.meta", filepath.Base(paths.Meta))
	}
}

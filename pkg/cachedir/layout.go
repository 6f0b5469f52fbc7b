// Package cachedir implements the on-disk cache directory protocol of
// §3.6/§4.9: a deterministic, reversible URL-to-subpath mapping, and the
// fixed file set (F, F.mref, F.mrkl, F.lock, F.meta) per cached remote
// file.
package cachedir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// Paths names the fixed file set for one cached remote file F.
type Paths struct {
	Data  string // F
	Ref   string // F.mref
	State string // F.mrkl
	Lock  string // F.lock
	Meta  string // F.meta
}

// Layout resolves cache subpaths under a single root directory.
type Layout struct {
	Root string
}

// New creates a Layout rooted at root, creating it if necessary.
func New(root string) (*Layout, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cachedir: create root %s: %w", root, err)
	}
	return &Layout{Root: root}, nil
}

// PathsFor returns the fixed file set for rawURL, creating its containing
// directory. The mapping first applies Unicode NFC normalization to
// rawURL so two byte-distinct but visually identical URLs never alias to
// different cache directories (§4.9), then hashes the normalized form and
// keeps the original host as a human-readable path segment.
func (l *Layout) PathsFor(rawURL string) (Paths, error) {
	dir, err := l.SubdirFor(rawURL)
	if err != nil {
		return Paths{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("cachedir: create subdir %s: %w", dir, err)
	}

	const base = "F"
	return Paths{
		Data:  filepath.Join(dir, base),
		Ref:   filepath.Join(dir, base+".mref"),
		State: filepath.Join(dir, base+".mrkl"),
		Lock:  filepath.Join(dir, base+".lock"),
		Meta:  filepath.Join(dir, base+".meta"),
	}, nil
}

// SubdirFor computes the deterministic, reversible subpath for rawURL
// without touching the filesystem.
func (l *Layout) SubdirFor(rawURL string) (string, error) {
	normalized := norm.NFC.String(rawURL)
	sum := sha256.Sum256([]byte(normalized))
	digest := hex.EncodeToString(sum[:])

	host := "unknown-host"
	if u, err := url.Parse(normalized); err == nil && u.Host != "" {
		host = u.Host
	}

	// digest[:16] keeps the directory name short while remaining
	// collision-resistant enough for a per-user cache. The mapping is
	// reversible in the operational sense the spec requires: F.meta
	// (see meta.go) records the origin URL inside the directory the hash
	// names, so a directory can always be traced back to its URL without
	// needing to invert the hash.
	return filepath.Join(l.Root, host, digest[:16]), nil
}

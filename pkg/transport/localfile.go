package transport

import (
	"context"
	"net/url"
	"os"

	"github.com/vecbench/vdfetch/pkg/fetcherr"
)

// LocalFileTransport implements RangeReader over file:// URLs (and plain
// filesystem paths), for local fixtures and same-host dataset mirrors. It
// behaves identically to HTTPTransport from the caller's perspective:
// size plus random-range reads, per §4.5's "local-file transports behave
// identically" requirement.
type LocalFileTransport struct{}

// NewLocalFileTransport builds a LocalFileTransport.
func NewLocalFileTransport() *LocalFileTransport { return &LocalFileTransport{} }

func (t *LocalFileTransport) Name() string { return "file" }

func (t *LocalFileTransport) ProbeSize(ctx context.Context, target string) (int64, error) {
	path, err := filePathFromTarget(target)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fetcherr.IoError(err, "stat %s", path)
	}
	return info.Size(), nil
}

func (t *LocalFileTransport) ReadRange(ctx context.Context, target string, offset, length int64) ([]byte, error) {
	path, err := filePathFromTarget(target)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fetcherr.IoError(err, "open %s", path)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && n != len(buf) {
		return nil, fetcherr.IoError(err, "read %d bytes at offset %d from %s", length, offset, path)
	}
	return buf[:n], nil
}

func filePathFromTarget(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fetcherr.IoError(err, "parse local target %s", target)
	}
	if u.Scheme == "" || u.Scheme == "file" {
		if u.Path != "" {
			return u.Path, nil
		}
		return target, nil
	}
	return target, nil
}

package cachedir

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/vecbench/vdfetch/pkg/fetcherr"
)

// metaEncMode is a CBOR encoding mode with canonical settings
// (deterministic key order, no indefinite-length items), so two
// processes writing the same metadata produce identical bytes.
var metaEncMode cbor.EncMode

func init() {
	var err error
	metaEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cachedir: failed to create canonical CBOR mode: %v", err))
	}
}

// Meta is the advisory sidecar recorded alongside a cached file (§3.6).
// Deleting it never affects correctness, only observability and
// re-probe avoidance: it exists so a cache directory can be traced back
// to the URL that produced it and so HTTP conditional requests can be
// attempted on a later refresh.
type Meta struct {
	OriginURL      string `cbor:"origin_url"`
	ETag           string `cbor:"etag,omitempty"`
	LastModified   string `cbor:"last_modified,omitempty"`
	FirstSeenUnix  int64  `cbor:"first_seen_unix"`
	LastVerifyUnix int64  `cbor:"last_verify_unix"`
	DatasetTag     string `cbor:"dataset_tag,omitempty"`
}

// WriteMeta encodes m as canonical CBOR and writes it to path.
func WriteMeta(path string, m Meta) error {
	data, err := metaEncMode.Marshal(m)
	if err != nil {
		return fetcherr.IoError(err, "encode cache metadata")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fetcherr.IoError(err, "write cache metadata %s", path)
	}
	return nil
}

// ReadMeta decodes the metadata sidecar at path. A missing or corrupt
// sidecar is reported as an error but must never be treated as a
// correctness failure by callers: it is advisory only. A decoded sidecar
// with no OriginURL is rejected: every real sidecar this engine writes
// sets it, so an empty one means the file is truncated or foreign.
func ReadMeta(path string) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, fetcherr.IoError(err, "read cache metadata %s", path)
	}
	var m Meta
	if err := cbor.Unmarshal(data, &m); err != nil {
		return Meta{}, fetcherr.InvalidFormat("cache metadata %s is not valid CBOR: %v", path, err)
	}
	if m.OriginURL == "" {
		return Meta{}, fetcherr.InvalidFormat("cache metadata %s is missing origin_url", path)
	}
	return m, nil
}

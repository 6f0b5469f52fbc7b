// Package chunkedfile implements ChunkedFile (C8), the engine's public
// surface: a remote blob addressed by URL, presented to consumers as a
// randomly-readable local file while chunks are fetched, verified, and
// persisted lazily and only on demand (§4.8).
package chunkedfile

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/vecbench/vdfetch/pkg/cachedir"
	"github.com/vecbench/vdfetch/pkg/chunkqueue"
	"github.com/vecbench/vdfetch/pkg/engineconfig"
	"github.com/vecbench/vdfetch/pkg/enginemetrics"
	"github.com/vecbench/vdfetch/pkg/fetcherr"
	"github.com/vecbench/vdfetch/pkg/merkle"
	"github.com/vecbench/vdfetch/pkg/scheduler"
	"github.com/vecbench/vdfetch/pkg/shape"
	"github.com/vecbench/vdfetch/pkg/transport"
)

// ChunkedFile is the engine's consumer-facing handle on one remote blob.
// Consumers must reach the underlying bytes only through Read/Prebuffer;
// direct access to the local cache file defeats the verification contract
// (§6.3).
type ChunkedFile struct {
	url   string
	sh    shape.Shape
	ref   *merkle.Ref
	state *merkle.State

	dataFile *os.File
	rt       transport.RangeReader
	sched    scheduler.Scheduler
	queue    *chunkqueue.Queue
	metrics  *enginemetrics.Metrics

	closeDrainTimeout time.Duration
	closing           atomic.Bool
	inFlight          sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Open sets up the local cache file for rawURL, loading a cached reference
// and state if present, or downloading and building them otherwise, per
// §4.8 and §4.9.
func Open(ctx context.Context, rawURL string, layout *cachedir.Layout, registry *transport.Registry, sched scheduler.Scheduler, cfg *engineconfig.Config, metrics *enginemetrics.Metrics) (*ChunkedFile, error) {
	if cfg == nil {
		cfg = engineconfig.DefaultConfig()
	}
	if metrics == nil {
		metrics = enginemetrics.Noop()
	}
	if sched == nil {
		sched = scheduler.Default{}
	}

	paths, err := layout.PathsFor(rawURL)
	if err != nil {
		return nil, fetcherr.IoError(err, "resolve cache paths for %s", rawURL)
	}

	rt, err := registry.ForURL(rawURL)
	if err != nil {
		return nil, fetcherr.TransportFatal(err, "no transport for %s", rawURL)
	}

	ref, err := merkle.Load(paths.Ref)
	if err != nil {
		ref, err = downloadReference(ctx, rawURL, rt, paths.Ref)
		if err != nil {
			return nil, err
		}
		now := time.Now().Unix()
		meta := cachedir.Meta{OriginURL: rawURL, FirstSeenUnix: now, LastVerifyUnix: now}
		if vs, ok := rt.(transport.ValidatorSource); ok {
			if etag, lastModified, ok := vs.Validators(rawURL); ok {
				meta.ETag = etag
				meta.LastModified = lastModified
			}
		}
		if err := cachedir.WriteMeta(paths.Meta, meta); err != nil {
			return nil, err
		}
	}

	state, err := merkle.LoadState(paths.State, paths.Lock)
	if err != nil {
		state, err = merkle.CreateFromRef(ref, paths.State, paths.Lock)
		if err != nil {
			return nil, err
		}
	}

	dataFile, err := os.OpenFile(paths.Data, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fetcherr.IoError(err, "open data file %s", paths.Data)
	}
	if err := dataFile.Truncate(ref.Shape().TotalContentSize); err != nil {
		dataFile.Close()
		return nil, fetcherr.IoError(err, "size data file %s", paths.Data)
	}

	return &ChunkedFile{
		url:               rawURL,
		sh:                ref.Shape(),
		ref:               ref,
		state:             state,
		dataFile:          dataFile,
		rt:                rt,
		sched:             sched,
		queue:             chunkqueue.New(cfg.MaxConcurrentChunks),
		metrics:           metrics,
		closeDrainTimeout: cfg.CloseDrainTimeout,
	}, nil
}

// downloadReference probes the remote size and builds the reference tree by
// reading every leaf chunk once over the transport, then persists it.
func downloadReference(ctx context.Context, rawURL string, rt transport.RangeReader, refPath string) (*merkle.Ref, error) {
	size, err := rt.ProbeSize(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	sh, err := shape.Of(size)
	if err != nil {
		return nil, err
	}
	src := &transportDataSource{ctx: ctx, rt: rt, url: rawURL, sh: sh}
	ref, err := merkle.Build(size, src)
	if err != nil {
		return nil, err
	}
	if err := ref.Save(refPath); err != nil {
		return nil, err
	}
	return ref, nil
}

// transportDataSource adapts a transport.RangeReader into merkle.DataSource
// so MerkleRef.Build can read the authoritative content one leaf at a time.
type transportDataSource struct {
	ctx context.Context
	rt  transport.RangeReader
	url string
	sh  shape.Shape
}

func (d *transportDataSource) ReadChunk(i int64) ([]byte, error) {
	off, length, err := d.sh.ForLeaf(i)
	if err != nil {
		return nil, err
	}
	return d.rt.ReadRange(d.ctx, d.url, off, length)
}

// Size returns the total content size of the virtual file.
func (cf *ChunkedFile) Size() int64 { return cf.sh.TotalContentSize }

// GetValidBits returns a snapshot of which leaves have been verified.
func (cf *ChunkedFile) GetValidBits() *bitset.BitSet { return cf.state.GetValidBits() }

// Read returns exactly length bytes starting at offset, fetching and
// verifying any chunks not already valid.
func (cf *ChunkedFile) Read(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := cf.ensureRange(ctx, offset, length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := cf.dataFile.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fetcherr.IoError(err, "read local file at [%d,%d)", offset, offset+length)
	}
	return buf[:n], nil
}

// Prebuffer fetches and verifies the given range without returning bytes,
// resolving the returned channel exactly once per §9's design note.
func (cf *ChunkedFile) Prebuffer(ctx context.Context, offset, length int64) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- cf.ensureRange(ctx, offset, length) }()
	return ch
}

// Close triggers an orderly drain: no new tasks are admitted, outstanding
// ensureRange calls are awaited up to closeDrainTimeout, and anything
// still running past that deadline is abandoned so Close can return and
// release the local file handle (§4.8, §5).
func (cf *ChunkedFile) Close() error {
	cf.closeOnce.Do(func() {
		cf.closing.Store(true)

		drained := make(chan struct{})
		go func() {
			cf.inFlight.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(cf.closeDrainTimeout):
		}

		flushErr := cf.state.Flush()
		closeErr := cf.dataFile.Close()
		if flushErr != nil {
			cf.closeErr = flushErr
		} else {
			cf.closeErr = closeErr
		}
	})
	return cf.closeErr
}

func (cf *ChunkedFile) ensureRange(ctx context.Context, offset, length int64) error {
	if cf.closing.Load() {
		return fetcherr.Cancelled("chunked file is closing, no new tasks accepted")
	}
	cf.inFlight.Add(1)
	defer cf.inFlight.Done()

	if offset < 0 || length < 0 {
		return fetcherr.OutOfRange("negative offset/length: offset=%d length=%d", offset, length)
	}
	if length == 0 {
		if offset > cf.sh.TotalContentSize {
			return fetcherr.OutOfRange("offset %d exceeds content size %d", offset, cf.sh.TotalContentSize)
		}
		return nil
	}
	if offset+length > cf.sh.TotalContentSize {
		return fetcherr.OutOfRange("range [%d,%d) exceeds content size %d", offset, offset+length, cf.sh.TotalContentSize)
	}

	r := scheduler.Range{Start: offset, End: offset + length}
	plan := cf.sched.Plan(r, cf.sh, cf.state.GetValidBits())
	if len(plan) == 0 {
		cf.metrics.CacheHits.Inc()
		return nil
	}
	cf.metrics.CacheMisses.Inc()

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range plan {
		task := task
		g.Go(func() error { return cf.fetchAndVerify(gctx, task) })
	}
	return g.Wait()
}

// fetchAndVerify runs task.NodeIndex through the single-flight queue:
// fetch, verify the subtree hash, write bytes to the local file, then mark
// every covered leaf valid. The write-before-mark ordering satisfies §5's
// happens-before requirement between data bytes and validity bits.
func (cf *ChunkedFile) fetchAndVerify(ctx context.Context, task scheduler.Task) error {
	return cf.queue.Do(ctx, task.NodeIndex, func(ctx context.Context) error {
		start := time.Now()
		kind := nodeKind(task.NodeIndex, cf.sh)
		defer func() { cf.metrics.FetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds()) }()

		length := task.ByteRange.End - task.ByteRange.Start
		data, err := cf.rt.ReadRange(ctx, cf.url, task.ByteRange.Start, length)
		if err != nil {
			return err
		}

		if err := cf.verifySubtree(task, data); err != nil {
			if fetcherr.Is(err, fetcherr.KindHashMismatch) {
				cf.metrics.HashMismatches.WithLabelValues(kind).Inc()
			}
			return err
		}

		if _, err := cf.dataFile.WriteAt(data, task.ByteRange.Start); err != nil {
			return fetcherr.IoError(err, "write local file at [%d,%d)", task.ByteRange.Start, task.ByteRange.End)
		}

		first, last, err := cf.leafRangeForTask(task)
		if err != nil {
			return err
		}
		for i := first; i <= last; i++ {
			off, leafLen, err := cf.sh.ForLeaf(i)
			if err != nil {
				return err
			}
			local := off - task.ByteRange.Start
			if err := cf.state.VerifyAndMark(i, data[local:local+leafLen], cf.ref); err != nil {
				return err
			}
		}

		cf.metrics.ChunksFetched.WithLabelValues(kind).Inc()
		cf.metrics.BytesFetched.Add(float64(length))
		return nil
	})
}

func nodeKind(node int64, sh shape.Shape) string {
	if node >= sh.InternalNodeCount {
		return "leaf"
	}
	return "internal"
}

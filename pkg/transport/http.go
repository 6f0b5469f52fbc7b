package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/vecbench/vdfetch/pkg/enginemetrics"
	"github.com/vecbench/vdfetch/pkg/fetcherr"
	"github.com/vecbench/vdfetch/pkg/retry"
)

// HTTPTransport implements RangeReader over HTTP/HTTPS Range GETs, per
// §6.2: "Range: bytes=off-end" semantics, 206 expected, 200 accepted for
// small files, short reads treated as retriable failures.
type HTTPTransport struct {
	client  *http.Client
	policy  retry.Policy
	metrics *enginemetrics.Metrics
	state   *httpTransportState
}

// httpTransportState is shared across the copies WithPolicy/WithMetrics
// return, since they describe the same underlying connection, not a new
// one.
type httpTransportState struct {
	mu         sync.Mutex
	validators map[string]cacheValidators
}

// cacheValidators holds the conditional-request headers observed for a
// target, per §3.6's "ETag/Last-Modified if observed".
type cacheValidators struct {
	etag         string
	lastModified string
}

// NewHTTPTransport builds an HTTPTransport. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		client:  client,
		policy:  retry.DefaultPolicy(),
		metrics: enginemetrics.Noop(),
		state:   &httpTransportState{validators: make(map[string]cacheValidators)},
	}
}

// WithPolicy returns a copy of t using the given retry policy, letting
// EngineConfig override HTTP_RETRIES/HTTP_BACKOFF_MS (§6.4).
func (t *HTTPTransport) WithPolicy(p retry.Policy) *HTTPTransport {
	return &HTTPTransport{client: t.client, policy: p, metrics: t.metrics, state: t.state}
}

// WithMetrics returns a copy of t reporting retry counts to m instead of
// the no-op default.
func (t *HTTPTransport) WithMetrics(m *enginemetrics.Metrics) *HTTPTransport {
	return &HTTPTransport{client: t.client, policy: t.policy, metrics: m, state: t.state}
}

// Validators returns the ETag/Last-Modified headers last observed for
// target, if any request has completed for it yet.
func (t *HTTPTransport) Validators(target string) (etag, lastModified string, ok bool) {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	v, found := t.state.validators[target]
	return v.etag, v.lastModified, found
}

func (t *HTTPTransport) recordValidators(target string, header http.Header) {
	etag := header.Get("ETag")
	lastModified := header.Get("Last-Modified")
	if etag == "" && lastModified == "" {
		return
	}
	t.state.mu.Lock()
	t.state.validators[target] = cacheValidators{etag: etag, lastModified: lastModified}
	t.state.mu.Unlock()
}

func (t *HTTPTransport) Name() string { return "http" }

// ProbeSize obtains total content size from a HEAD request, falling back
// to an initial ranged GET's Content-Range when HEAD is unsupported.
func (t *HTTPTransport) ProbeSize(ctx context.Context, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, fetcherr.IoError(err, "build HEAD request for %s", target)
	}
	resp, err := t.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
			t.recordValidators(target, resp.Header)
			return resp.ContentLength, nil
		}
	}

	// Fall back to a tiny ranged GET and read Content-Range's total.
	data, contentRange, err := t.rangedGET(ctx, target, 0, 1)
	if err != nil {
		return 0, err
	}
	_ = data
	total, err := parseContentRangeTotal(contentRange)
	if err != nil {
		return 0, fetcherr.TransportFatal(err, "probe size for %s", target)
	}
	return total, nil
}

// ReadRange performs a byte-range GET, retrying transient failures with
// capped exponential backoff (§4.5) before surfacing TransportFatal.
func (t *HTTPTransport) ReadRange(ctx context.Context, target string, offset, length int64) ([]byte, error) {
	var result []byte
	err := retry.Do(ctx, t.policy, func(attempt int) (bool, error) {
		if attempt > 1 {
			t.metrics.TransportRetries.WithLabelValues(t.Name()).Inc()
		}
		data, _, err := t.rangedGET(ctx, target, offset, length)
		if err != nil {
			if fe, ok := err.(*fetcherrTag); ok {
				return fe.retryable, fe.error
			}
			return true, err
		}
		if int64(len(data)) != length {
			return true, fetcherr.TransportRetriable(nil, "short read from %s: got %d bytes, want %d", target, len(data), length)
		}
		result = data
		return false, nil
	})
	if err != nil {
		if fetcherr.Is(err, fetcherr.KindTransportRetriable) {
			return nil, fetcherr.TransportFatal(err, "exhausted retries reading %s [%d,%d)", target, offset, offset+length)
		}
		return nil, err
	}
	return result, nil
}

// fetcherrTag lets rangedGET tell ReadRange's retry loop whether a failure
// was retryable without re-parsing the wrapped FetchError's Kind.
type fetcherrTag struct {
	error
	retryable bool
}

func (t *HTTPTransport) rangedGET(ctx context.Context, target string, offset, length int64) (data []byte, contentRange string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fetcherr.IoError(err, "build GET request for %s", target)
	}
	end := offset + length - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, end))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", &fetcherrTag{error: fetcherr.TransportRetriable(err, "GET %s", target), retryable: true}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent, http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", &fetcherrTag{error: fetcherr.TransportRetriable(err, "read body from %s", target), retryable: true}
		}
		t.recordValidators(target, resp.Header)
		return body, resp.Header.Get("Content-Range"), nil
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, "", &fetcherrTag{error: fetcherr.TransportRetriable(nil, "%s responded %d", target, resp.StatusCode), retryable: true}
	default:
		return nil, "", &fetcherrTag{error: fetcherr.TransportFatal(nil, "%s responded %d", target, resp.StatusCode), retryable: false}
	}
}

// parseContentRangeTotal extracts the total size from a header of the form
// "bytes 0-0/12345".
func parseContentRangeTotal(header string) (int64, error) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, fmt.Errorf("malformed Content-Range header %q", header)
	}
	return strconv.ParseInt(header[idx+1:], 10, 64)
}

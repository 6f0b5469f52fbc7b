// Package enginemetrics exposes the fetch engine's Prometheus instrumentation
// (§11.5): chunk fetch counts, cache hits, hash mismatches, and transport
// retries, grounded on the teacher corpus's Metrics{Registry
// prometheus.Registerer} wrapper.
package enginemetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's registered collectors. The zero value is not
// usable; construct with New.
type Metrics struct {
	Registry prometheus.Registerer

	ChunksFetched    *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	HashMismatches   *prometheus.CounterVec
	TransportRetries *prometheus.CounterVec
	BytesFetched     prometheus.Counter
	FetchDuration    *prometheus.HistogramVec
}

// New creates and registers the engine's collectors against reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Registry: reg,
		ChunksFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vdfetch",
			Name:      "chunks_fetched_total",
			Help:      "Number of chunk fetch tasks completed, by scheduler node kind.",
		}, []string{"node_kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdfetch",
			Name:      "cache_hits_total",
			Help:      "Number of reads satisfied entirely from already-valid leaves.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdfetch",
			Name:      "cache_misses_total",
			Help:      "Number of reads that required fetching at least one leaf.",
		}),
		HashMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vdfetch",
			Name:      "hash_mismatches_total",
			Help:      "Number of fetched nodes that failed hash verification.",
		}, []string{"node_kind"}),
		TransportRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vdfetch",
			Name:      "transport_retries_total",
			Help:      "Number of retried range requests, by transport scheme.",
		}, []string{"scheme"}),
		BytesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdfetch",
			Name:      "bytes_fetched_total",
			Help:      "Total bytes pulled over the wire across all transports.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vdfetch",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of a single node-task fetch, by scheduler node kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_kind"}),
	}

	collectors := []prometheus.Collector{
		m.ChunksFetched,
		m.CacheHits,
		m.CacheMisses,
		m.HashMismatches,
		m.TransportRetries,
		m.BytesFetched,
		m.FetchDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Noop returns a Metrics backed by a private registry, for callers that do
// not want to wire up their own (e.g. tests, or an embedding caller with no
// metrics pipeline of its own).
func Noop() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		panic("enginemetrics: noop registration failed: " + err.Error())
	}
	return m
}

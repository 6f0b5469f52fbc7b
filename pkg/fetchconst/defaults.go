// Package fetchconst defines the engine-wide constants that make the
// persistent format and default tuning reproducible: chunk shape bounds,
// magic numbers, and the default concurrency/retry knobs from §6.4.
package fetchconst

import "time"

// Shape Configuration (§3.1)
const (
	// BaseChunkSize is the smallest chunk size considered when deriving Shape.
	BaseChunkSize = 1024 * 1024 // 1 MiB

	// MaxLeafCount bounds how many leaves a tree may have; chunk size grows
	// to keep the leaf count under this bound for very large content.
	MaxLeafCount = 4096
)

// Hash Configuration (§3.2)
const (
	// HashSize is the width, in bytes, of every leaf and internal node hash.
	HashSize = 32
)

// Persistent Format Configuration (§3.5, §6.1)
const (
	// MagicReference identifies a .mref (reference tree) file.
	MagicReference uint32 = 0x4d524546 // "MREF"

	// MagicState identifies a .mrkl (state tree) file.
	MagicState uint32 = 0x4d524b4c // "MRKL"
)

// Concurrency Configuration (§5, §6.4)
const (
	// DefaultMaxConcurrentChunks bounds the number of node-tasks in flight
	// at once, overridable via MAX_CONCURRENT_CHUNKS.
	DefaultMaxConcurrentChunks = 8

	// DefaultCloseDrainTimeout bounds how long close() waits for
	// outstanding waited-on tasks before abandoning them.
	DefaultCloseDrainTimeout = 30 * time.Second
)

// Transport Configuration (§4.5, §6.4)
const (
	// DefaultHTTPRetries is the max number of retry attempts for a
	// retriable transport error, overridable via HTTP_RETRIES.
	DefaultHTTPRetries = 4

	// DefaultHTTPTimeout bounds a single ranged request, overridable via
	// HTTP_TIMEOUT_MS.
	DefaultHTTPTimeout = 15 * time.Second

	// DefaultHTTPBackoff is the initial backoff delay before the first
	// retry, overridable via HTTP_BACKOFF_MS. Doubles per attempt up to
	// DefaultHTTPMaxBackoff.
	DefaultHTTPBackoff = 200 * time.Millisecond

	// DefaultHTTPMaxBackoff caps the exponential backoff delay.
	DefaultHTTPMaxBackoff = 10 * time.Second
)

// Scheduler Configuration (§4.6)
const (
	// DefaultAggressiveMaxBytes caps the size of a single promoted
	// internal-node task under the aggressive scheduler.
	DefaultAggressiveMaxBytes = 8 * 1024 * 1024 // 8 MiB

	// DefaultAdaptiveValidFractionThreshold is the fraction of a requested
	// range already valid above which the adaptive scheduler prefers the
	// default (leaf-level) strategy over promotion.
	DefaultAdaptiveValidFractionThreshold = 0.5
)

// Package retry implements the capped exponential backoff policy used by
// the transport layer (§4.5, §5). It generalizes the teacher's supervisor
// restart loop (bounded attempts, growing delay, explicit give-up point)
// from "restart a failed agent" to "retry a failed ranged read".
package retry

import (
	"context"
	"time"

	"github.com/vecbench/vdfetch/pkg/fetchconst"
)

// Policy configures a capped exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay regardless of attempt count.
	MaxDelay time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
}

// DefaultPolicy returns the engine's default transport retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  fetchconst.DefaultHTTPRetries + 1,
		InitialDelay: fetchconst.DefaultHTTPBackoff,
		MaxDelay:     fetchconst.DefaultHTTPMaxBackoff,
		Multiplier:   2,
	}
}

// Delay returns the backoff delay before attempt number n (1-indexed: the
// delay awaited before making attempt n, n >= 2).
func (p Policy) Delay(n int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < n-1; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn up to p.MaxAttempts times, sleeping Delay(n) between
// attempts. fn reports whether an error is retryable; Do stops early on a
// non-retryable error. It returns the last error if every attempt fails,
// or nil on the first success.
func Do(ctx context.Context, p Policy, fn func(attempt int) (retryable bool, err error)) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		retryable, err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt == p.MaxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt + 1)):
		}
	}
	return lastErr
}

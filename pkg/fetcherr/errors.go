// Package fetcherr implements the fetch engine's error taxonomy (§7): a
// single exported error type carrying a kind, a retryable flag, and an
// unwrappable cause, modeled on the teacher's own ContentError.
package fetcherr

import (
	"errors"
	"fmt"
)

// Kind classifies a FetchError per the taxonomy in §7.
type Kind string

const (
	KindInvalidFormat      Kind = "INVALID_FORMAT"
	KindHashMismatch       Kind = "HASH_MISMATCH"
	KindTransportRetriable Kind = "TRANSPORT_RETRIABLE"
	KindTransportFatal     Kind = "TRANSPORT_FATAL"
	KindIoError            Kind = "IO_ERROR"
	KindCancelled          Kind = "CANCELLED"
	KindOutOfRange         Kind = "OUT_OF_RANGE"
)

// FetchError is the engine's single exported error type.
type FetchError struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the error's kind suggests the caller (or the
// engine's own retry loop) should try again.
func (e *FetchError) IsRetryable() bool { return e.Retryable }

func newErr(kind Kind, retryable bool, format string, args ...any) *FetchError {
	return &FetchError{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: retryable}
}

// InvalidFormat reports a malformed reference/state file (§6.1).
func InvalidFormat(format string, args ...any) *FetchError {
	return newErr(KindInvalidFormat, false, format, args...)
}

// HashMismatch reports a chunk or node that failed verification.
func HashMismatch(format string, args ...any) *FetchError {
	return newErr(KindHashMismatch, false, format, args...)
}

// TransportRetriable reports a transient transport failure eligible for
// the retry/backoff policy in pkg/retry.
func TransportRetriable(cause error, format string, args ...any) *FetchError {
	e := newErr(KindTransportRetriable, true, format, args...)
	e.Cause = cause
	return e
}

// TransportFatal reports a transport failure that must not be retried,
// either because the server said so (4xx) or because retries were
// exhausted.
func TransportFatal(cause error, format string, args ...any) *FetchError {
	e := newErr(KindTransportFatal, false, format, args...)
	e.Cause = cause
	return e
}

// IoError reports a local filesystem or lock failure.
func IoError(cause error, format string, args ...any) *FetchError {
	e := newErr(KindIoError, false, format, args...)
	e.Cause = cause
	return e
}

// OutOfRange reports a read past the end of the virtual file.
func OutOfRange(format string, args ...any) *FetchError {
	return newErr(KindOutOfRange, false, format, args...)
}

// Cancelled reports a close-during-await with no other surviving waiter.
func Cancelled(format string, args ...any) *FetchError {
	return newErr(KindCancelled, false, format, args...)
}

// Is reports whether err is a *FetchError of the given kind.
func Is(err error, kind Kind) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// IsRetryable reports whether err is a *FetchError whose kind is retryable.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

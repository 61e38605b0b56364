package objectstore

import (
	"context"
	"errors"
	"os"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
// Never retried.
var ErrNotFound = os.ErrNotExist

var (
	// ErrThrottle indicates a transient rate-limit rejection from the
	// backing store. Safe to retry after backoff.
	ErrThrottle = errors.New("objectstore: throttled")

	// ErrServer indicates a transient server-side failure (5xx class).
	// Safe to retry after backoff.
	ErrServer = errors.New("objectstore: server error")

	// ErrForbidden indicates a permanent authorization failure.
	// Never retried.
	ErrForbidden = errors.New("objectstore: forbidden")

	// ErrTimeout indicates a per-call deadline expiry. Safe to retry.
	ErrTimeout = errors.New("objectstore: timeout")
)

// IsRetryable reports whether err is a transient failure that may succeed
// on a later attempt. NotFound and Forbidden are permanent by contract.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrThrottle) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

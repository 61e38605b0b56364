package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("snapshot: validation failed")

	// ErrEmptyBatch is returned when a snapshot is requested for zero
	// documents.
	ErrEmptyBatch = fmt.Errorf("%w: empty document batch", ErrValidation)
)

// DimensionMismatchError reports a document whose vector length differs from
// the first document in the batch.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	Index    int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("snapshot: dimension mismatch at index %d: expected %d, got %d", e.Index, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrValidation
}

// CountMismatchError reports a decoded snapshot whose document count differs
// from its committed metadata.
type CountMismatchError struct {
	Expected int
	Actual   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("snapshot: document count mismatch: metadata says %d, decoded %d", e.Expected, e.Actual)
}

func (e *CountMismatchError) Unwrap() error {
	return ErrCorrupted
}

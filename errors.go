package tiergo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/tiergo/objectstore"
	"github.com/hupe1980/tiergo/tiering"
)

var (
	// ErrNotFound is returned when a snapshot or stored object is not found.
	ErrNotFound = errors.New("not found")

	// ErrPinned is returned when a demotion is requested for a pinned
	// collection.
	ErrPinned = errors.New("collection is pinned")

	// ErrClosed is returned when an operation is invoked after Close.
	ErrClosed = errors.New("closed")
)

// translateError normalizes subpackage errors at the facade boundary. The
// underlying error remains reachable via errors.Is / errors.Unwrap.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, objectstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if errors.Is(err, tiering.ErrPinned) {
		return fmt.Errorf("%w: %w", ErrPinned, err)
	}

	if errors.Is(err, tiering.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}

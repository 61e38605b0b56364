package objectstore

import (
	"context"
)

// ObjectStore is an abstraction for accessing a durable key-value byte
// store.
//
// Keys are slash-separated paths. Implementations must be safe for
// concurrent use and must return errors satisfying the contracts in
// errors.go (notably `errors.Is(err, ErrNotFound)` for absent keys on
// Get and Delete).
type ObjectStore interface {
	// Put writes an object atomically. Existing objects are replaced.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the full content of an object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object. Deleting an absent key returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
}

package tiering

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/tiergo/model"
)

// CollectionStore is the hot tier: the application-owned store that holds
// collections resident in memory. The manager reads documents out of it
// when demoting, loads documents back into it when promoting, and evicts
// the in-memory copy once a demotion's data movement has succeeded.
type CollectionStore interface {
	// Documents returns the resident documents of a collection. A
	// collection with no resident copy yields an empty slice, not an
	// error.
	Documents(ctx context.Context, collectionID model.CollectionID) ([]model.VectorDocument, error)

	// Load places documents into memory, replacing any resident copy.
	Load(ctx context.Context, collectionID model.CollectionID, docs []model.VectorDocument) error

	// Evict drops the in-memory copy of a collection.
	Evict(ctx context.Context, collectionID model.CollectionID) error

	// MemoryBytes reports the estimated resident size of a collection,
	// 0 if nothing is resident.
	MemoryBytes(ctx context.Context, collectionID model.CollectionID) (int64, error)
}

// MemoryCollectionStore is a map-backed CollectionStore for single-node
// deployments and tests.
type MemoryCollectionStore struct {
	mu          sync.RWMutex
	collections map[model.CollectionID][]model.VectorDocument
}

// NewMemoryCollectionStore creates an empty in-memory collection store.
func NewMemoryCollectionStore() *MemoryCollectionStore {
	return &MemoryCollectionStore{
		collections: make(map[model.CollectionID][]model.VectorDocument),
	}
}

// Documents implements CollectionStore.
func (s *MemoryCollectionStore) Documents(_ context.Context, collectionID model.CollectionID) ([]model.VectorDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.collections[collectionID]
	if !ok {
		return nil, nil
	}

	out := make([]model.VectorDocument, len(docs))
	copy(out, docs)

	return out, nil
}

// Load implements CollectionStore.
func (s *MemoryCollectionStore) Load(_ context.Context, collectionID model.CollectionID, docs []model.VectorDocument) error {
	if collectionID == "" {
		return fmt.Errorf("tiering: collection id must not be empty")
	}

	resident := make([]model.VectorDocument, len(docs))
	copy(resident, docs)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collectionID] = resident

	return nil
}

// Evict implements CollectionStore.
func (s *MemoryCollectionStore) Evict(_ context.Context, collectionID model.CollectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collectionID)

	return nil
}

// MemoryBytes implements CollectionStore.
func (s *MemoryCollectionStore) MemoryBytes(_ context.Context, collectionID model.CollectionID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, doc := range s.collections[collectionID] {
		total += docBytes(doc)
	}

	return total, nil
}

// Contains reports whether a collection has a resident copy.
func (s *MemoryCollectionStore) Contains(collectionID model.CollectionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[collectionID]

	return ok
}

// Len returns the number of resident collections.
func (s *MemoryCollectionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections)
}

// docBytes estimates the resident size of one document: struct overhead
// plus vector data, external id, and metadata keys.
func docBytes(doc model.VectorDocument) int64 {
	size := int64(64)
	size += int64(len(doc.ExternalID))
	size += int64(4 * len(doc.Vector))

	for k := range doc.Metadata {
		size += int64(len(k)) + 16
	}

	return size
}

package tierstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/tiergo/model"
)

// MemoryStore is an in-memory Store for single-process deployments and
// tests. Thread-safe.
type MemoryStore struct {
	window time.Duration

	mu     sync.RWMutex
	states map[model.CollectionID]model.TierState
}

// NewMemoryStore creates an in-memory state store. window is the
// access-tracking window length; values <= 0 fall back to
// DefaultAccessWindow.
func NewMemoryStore(window time.Duration) *MemoryStore {
	if window <= 0 {
		window = DefaultAccessWindow
	}
	return &MemoryStore{
		window: window,
		states: make(map[model.CollectionID]model.TierState),
	}
}

// RecordAccess notes one access for a collection, lazily creating a hot
// record on first sight.
func (s *MemoryStore) RecordAccess(ctx context.Context, id model.CollectionID) error {
	if id == "" {
		return fmt.Errorf("tierstate: empty collection id")
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if !ok {
		st = newHotState(id, now)
	}

	if now.Sub(st.AccessWindowStart) >= s.window {
		// Window elapsed: restart counting
		st.AccessCount = 1
		st.AccessWindowStart = now
	} else {
		st.AccessCount++
	}
	st.LastAccessedAt = now
	st.UpdatedAt = now

	s.states[id] = st
	return nil
}

// State returns the placement record, synthesizing a fresh hot record for
// unseen collections.
func (s *MemoryStore) State(ctx context.Context, id model.CollectionID) (model.TierState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.states[id]; ok {
		return st, nil
	}
	return newHotState(id, time.Now()), nil
}

// SetState stores the full placement record.
func (s *MemoryStore) SetState(ctx context.Context, state model.TierState) error {
	if state.CollectionID == "" {
		return fmt.Errorf("tierstate: empty collection id")
	}

	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.CollectionID] = state
	return nil
}

// ListByTier returns all records placed in tier.
func (s *MemoryStore) ListByTier(ctx context.Context, tier model.Tier) ([]model.TierState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TierState
	for _, st := range s.states {
		if st.Tier == tier {
			out = append(out, st)
		}
	}
	return out, nil
}

// Pinned reports whether a collection is pinned. Unseen collections are not
// pinned.
func (s *MemoryStore) Pinned(ctx context.Context, id model.CollectionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.states[id].Pinned, nil
}

// SetPinned marks or unmarks a collection as pinned, lazily creating a hot
// record so a pin placed before the first access sticks.
func (s *MemoryStore) SetPinned(ctx context.Context, id model.CollectionID, pinned bool) error {
	if id == "" {
		return fmt.Errorf("tierstate: empty collection id")
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if !ok {
		st = newHotState(id, now)
	}
	st.Pinned = pinned
	st.UpdatedAt = now

	s.states[id] = st
	return nil
}

// ResetWindow restarts the access-tracking window with a zero count.
func (s *MemoryStore) ResetWindow(ctx context.Context, id model.CollectionID) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if !ok {
		return nil
	}
	st.AccessCount = 0
	st.AccessWindowStart = now
	st.UpdatedAt = now

	s.states[id] = st
	return nil
}

// Delete removes the record for a collection. Deleting an unknown
// collection is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id model.CollectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, id)
	return nil
}

// Len returns the number of tracked collections.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

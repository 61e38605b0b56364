package tierstate

import (
	"context"
	"time"

	"github.com/hupe1980/tiergo/model"
)

// DefaultAccessWindow is the tracking-window length used when none is given.
const DefaultAccessWindow = time.Hour

// Store persists tier placement and access-tracking state.
//
// Collections without a stored record behave as freshly created hot-tier
// collections: State synthesizes a hot record and Pinned reports false, so
// callers never need a not-found branch.
type Store interface {
	// RecordAccess notes one access: it bumps the access counter, stamps
	// LastAccessedAt, and restarts the tracking window (count = 1) once the
	// window has elapsed.
	RecordAccess(ctx context.Context, id model.CollectionID) error

	// State returns the placement record for a collection.
	State(ctx context.Context, id model.CollectionID) (model.TierState, error)

	// SetState stores the full placement record, overwriting any previous
	// one. CreatedAt is stamped when zero and UpdatedAt is always stamped.
	SetState(ctx context.Context, state model.TierState) error

	// ListByTier returns all records currently placed in tier. Order is
	// unspecified.
	ListByTier(ctx context.Context, tier model.Tier) ([]model.TierState, error)

	// Pinned reports whether a collection is excluded from automatic
	// demotion.
	Pinned(ctx context.Context, id model.CollectionID) (bool, error)

	// SetPinned marks or unmarks a collection as pinned.
	SetPinned(ctx context.Context, id model.CollectionID, pinned bool) error

	// ResetWindow restarts the access-tracking window with a zero count.
	// Resetting an unknown collection is a no-op.
	ResetWindow(ctx context.Context, id model.CollectionID) error
}

// newHotState returns the record a collection starts out with: hot tier,
// no recorded accesses.
func newHotState(id model.CollectionID, now time.Time) model.TierState {
	return model.TierState{
		CollectionID:      id,
		Tier:              model.TierHot,
		AccessWindowStart: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

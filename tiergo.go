package tiergo

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/tiergo/model"
	"github.com/hupe1980/tiergo/objectstore"
	"github.com/hupe1980/tiergo/snapshot"
	"github.com/hupe1980/tiergo/tiering"
	"github.com/hupe1980/tiergo/tierstate"
)

// Tiering is the application-facing handle for tiered collection
// placement. The request-handling layer calls RecordAccess on every read
// or write and otherwise leaves placement to the background worker;
// RequestPromotion, RequestDemotion and Pin exist for the cases where the
// application knows better than the policy.
type Tiering struct {
	manager     *tiering.Manager
	snapshotter *snapshot.Snapshotter
	states      tierstate.Store
	metrics     MetricsCollector
	logger      *Logger
}

// New creates a Tiering instance over the application's collection store
// and a cold-tier object store.
//
// The cold store is wrapped in a retry layer unless WithoutRetry is set.
// Warm objects default to an in-memory store; pass WithWarmDir or
// WithWarmStore for warm data that outlives the process. Placement state
// defaults to an in-memory store; pass WithStateStore for placement that
// survives restarts.
func New(source tiering.CollectionStore, cold objectstore.ObjectStore, optFns ...Option) (*Tiering, error) {
	if source == nil {
		return nil, fmt.Errorf("tiergo: collection store is required")
	}
	if cold == nil {
		return nil, fmt.Errorf("tiergo: cold object store is required")
	}

	opts := applyOptions(optFns)

	coldStore := cold
	if !opts.retryDisabled {
		rs, err := objectstore.NewRetryStore(cold, opts.retryConfig, objectstore.WithRetryLogger(opts.logger.Logger))
		if err != nil {
			return nil, fmt.Errorf("tiergo: retry layer: %w", err)
		}
		coldStore = rs
	}

	snapshotter := snapshot.New(coldStore,
		snapshot.WithCompression(opts.compression),
		snapshot.WithLogger(opts.logger.Logger),
	)

	warm := opts.warm
	if warm == nil {
		if opts.warmDir != "" {
			warm = objectstore.NewLocalStore(opts.warmDir)
		} else {
			warm = objectstore.NewMemoryStore(objectstore.WithoutHistory())
		}
	}

	states := opts.states
	if states == nil {
		states = tierstate.NewMemoryStore(opts.policy.AccessWindow)
	}

	manager, err := tiering.NewManager(tiering.ManagerConfig{
		Policy:      opts.policy,
		States:      states,
		Cold:        snapshotter,
		Warm:        warm,
		Source:      source,
		Compression: opts.compression,
		Controller:  opts.controller,
		Observer:    &managerObserver{metrics: opts.metricsCollector},
		Logger:      opts.logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Tiering{
		manager:     manager,
		snapshotter: snapshotter,
		states:      states,
		metrics:     opts.metricsCollector,
		logger:      opts.logger,
	}, nil
}

// RecordAccess notes one access to a collection. Call it on every read or
// write path touching the collection; it is cheap and never returns an
// error. Tracking failures are logged, not surfaced.
func (t *Tiering) RecordAccess(ctx context.Context, collectionID model.CollectionID) {
	t.metrics.RecordAccess()
	t.manager.RecordAccess(ctx, collectionID)
}

// TierStatus returns the placement record for a collection. Collections
// never seen before report as freshly created hot-tier collections.
func (t *Tiering) TierStatus(ctx context.Context, collectionID model.CollectionID) (model.TierState, error) {
	st, err := t.manager.TierStatus(ctx, collectionID)
	return st, translateError(err)
}

// RequestPromotion moves a collection up to the hot tier, restoring from
// cold through warm as needed. If a transition for the collection is
// already in flight the request is a no-op.
func (t *Tiering) RequestPromotion(ctx context.Context, collectionID model.CollectionID) error {
	return translateError(t.manager.RequestPromotion(ctx, collectionID))
}

// RequestDemotion moves a collection down to the cold tier. Pinned
// collections return ErrPinned. If a transition for the collection is
// already in flight the request is a no-op.
func (t *Tiering) RequestDemotion(ctx context.Context, collectionID model.CollectionID) error {
	return translateError(t.manager.RequestDemotion(ctx, collectionID))
}

// Pin keeps a collection out of demotion until Unpin is called. Already
// demoted collections stay where they are; pinning affects future
// demotions only.
func (t *Tiering) Pin(ctx context.Context, collectionID model.CollectionID) error {
	return translateError(t.manager.Pin(ctx, collectionID))
}

// Unpin re-enables demotion for a collection.
func (t *Tiering) Unpin(ctx context.Context, collectionID model.CollectionID) error {
	return translateError(t.manager.Unpin(ctx, collectionID))
}

// TierMetrics returns the number of collections per tier.
func (t *Tiering) TierMetrics(ctx context.Context) (model.TierCounts, error) {
	counts, err := t.manager.TierMetrics(ctx)
	return counts, translateError(err)
}

// Snapshots lists a collection's snapshots, newest first.
func (t *Tiering) Snapshots(ctx context.Context, collectionID model.CollectionID) ([]model.SnapshotMetadata, error) {
	metas, err := t.snapshotter.List(ctx, collectionID)
	return metas, translateError(err)
}

// CleanupSnapshots removes snapshots older than retention and any partial
// uploads left behind by interrupted snapshot writes. The most recent
// snapshot is always kept. Returns the number of snapshots and orphaned
// objects removed.
func (t *Tiering) CleanupSnapshots(ctx context.Context, collectionID model.CollectionID, retention time.Duration) (int, error) {
	removed, err := t.snapshotter.CleanupOld(ctx, collectionID, retention)
	if err != nil {
		t.logger.LogCleanup(ctx, collectionID, removed, err)
		return removed, translateError(err)
	}

	orphans, err := t.snapshotter.CleanupOrphans(ctx, collectionID)
	removed += orphans

	t.logger.LogCleanup(ctx, collectionID, removed, err)

	return removed, translateError(err)
}

// RunCycle runs one policy evaluation cycle immediately, independent of
// the background worker. Useful when cycles are scheduled externally.
// It returns the number of completed transitions.
func (t *Tiering) RunCycle(ctx context.Context) (int, error) {
	transitions, err := t.manager.RunCycle(ctx)
	return transitions, translateError(err)
}

// Start launches the background worker that evaluates the tiering policy
// at the configured interval. Start is idempotent.
func (t *Tiering) Start() error {
	return translateError(t.manager.Start())
}

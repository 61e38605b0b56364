package tiering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/tiergo/model"
	"github.com/hupe1980/tiergo/objectstore"
	"github.com/hupe1980/tiergo/resource"
	"github.com/hupe1980/tiergo/snapshot"
	"github.com/hupe1980/tiergo/tierstate"
)

var (
	// ErrPinned is returned when a demotion is requested for a pinned
	// collection.
	ErrPinned = errors.New("tiering: collection is pinned")

	// ErrClosed is returned when an operation is invoked on a closed
	// manager.
	ErrClosed = errors.New("tiering: manager closed")
)

const warmPrefix = "warm"

// WarmKey returns the warm-tier object key for a collection.
func WarmKey(collectionID model.CollectionID) string {
	return path.Join(warmPrefix, string(collectionID)+".data")
}

// ManagerConfig wires the manager's collaborators. States, Cold, Warm and
// Source are required; everything else has a usable zero value.
type ManagerConfig struct {
	// Policy drives automatic transitions. The zero value means
	// DefaultPolicy().
	Policy Policy

	// States persists placement records and access counters.
	States tierstate.Store

	// Cold creates and restores durable snapshots.
	Cold *snapshot.Snapshotter

	// Warm holds serialized collections evicted from memory.
	Warm objectstore.ObjectStore

	// Source is the application's hot store.
	Source CollectionStore

	// Compression is the codec for warm-tier objects. The zero value
	// stores them uncompressed.
	Compression snapshot.Compression

	// Controller enforces global transition and upload limits. Optional.
	Controller *resource.Controller

	// Observer receives transition and cycle notifications. Optional.
	Observer MetricsObserver

	// Logger receives transition and cycle logs. Optional.
	Logger *slog.Logger
}

// Manager moves collections between the hot, warm and cold tiers.
//
// All transitions, automatic and requested, serialize per collection
// through a keyed try-lock: a caller that finds a transition already in
// flight treats its own request as done. Placement state is written only
// after the data movement succeeded, so a failed or interrupted
// transition leaves the previous tier intact and retryable.
type Manager struct {
	policy      Policy
	states      tierstate.Store
	cold        *snapshot.Snapshotter
	warm        objectstore.ObjectStore
	source      CollectionStore
	compression snapshot.Compression
	controller  *resource.Controller
	observer    MetricsObserver
	logger      *slog.Logger
	locks       *keyedLock

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Tracks if the manager is closed
	closed atomic.Bool
}

// NewManager creates a tiering manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	if cfg.States == nil {
		return nil, fmt.Errorf("tiering: state store is required")
	}

	if cfg.Cold == nil {
		return nil, fmt.Errorf("tiering: snapshotter is required")
	}

	if cfg.Warm == nil {
		return nil, fmt.Errorf("tiering: warm store is required")
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("tiering: collection store is required")
	}

	if cfg.Observer == nil {
		cfg.Observer = &NoopMetricsObserver{}
	}

	if cfg.Logger == nil {
		cfg.Logger = noopLogger()
	}

	return &Manager{
		policy:      cfg.Policy,
		states:      cfg.States,
		cold:        cfg.Cold,
		warm:        cfg.Warm,
		source:      cfg.Source,
		compression: cfg.Compression,
		controller:  cfg.Controller,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		locks:       newKeyedLock(),
		stopCh:      make(chan struct{}),
	}, nil
}

// noopLogger returns a logger that discards everything.
func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// RecordAccess notes one access to a collection. Tracking failures are
// logged, never surfaced: a metadata hiccup must not fail a read.
func (m *Manager) RecordAccess(ctx context.Context, collectionID model.CollectionID) {
	if err := m.states.RecordAccess(ctx, collectionID); err != nil {
		m.logger.Warn("access tracking failed", "collection", collectionID, "error", err)
	}
}

// TierStatus returns the placement record for a collection. Collections
// without a record report as freshly created hot-tier collections.
func (m *Manager) TierStatus(ctx context.Context, collectionID model.CollectionID) (model.TierState, error) {
	return m.states.State(ctx, collectionID)
}

// Pin excludes a collection from demotion until Unpin is called.
func (m *Manager) Pin(ctx context.Context, collectionID model.CollectionID) error {
	return m.states.SetPinned(ctx, collectionID, true)
}

// Unpin re-enables demotion for a collection.
func (m *Manager) Unpin(ctx context.Context, collectionID model.CollectionID) error {
	return m.states.SetPinned(ctx, collectionID, false)
}

// TierMetrics returns the number of collections per tier.
func (m *Manager) TierMetrics(ctx context.Context) (model.TierCounts, error) {
	var counts model.TierCounts

	hot, err := m.states.ListByTier(ctx, model.TierHot)
	if err != nil {
		return model.TierCounts{}, err
	}

	warm, err := m.states.ListByTier(ctx, model.TierWarm)
	if err != nil {
		return model.TierCounts{}, err
	}

	cold, err := m.states.ListByTier(ctx, model.TierCold)
	if err != nil {
		return model.TierCounts{}, err
	}

	counts.Hot = len(hot)
	counts.Warm = len(warm)
	counts.Cold = len(cold)

	return counts, nil
}

// RequestDemotion moves a collection down to the cold tier, chaining
// hot->warm->cold as needed under a single lock acquisition. Pinned
// collections return ErrPinned. If another transition for the collection
// is already in flight the request is a no-op.
func (m *Manager) RequestDemotion(ctx context.Context, collectionID model.CollectionID) error {
	if m.closed.Load() {
		return ErrClosed
	}

	release, ok := m.locks.TryAcquire(collectionID)
	if !ok {
		return nil
	}
	defer release()

	if _, err := m.demoteToWarm(ctx, collectionID); err != nil {
		return err
	}

	_, err := m.demoteToCold(ctx, collectionID)

	return err
}

// RequestPromotion moves a collection up to the hot tier, chaining
// cold->warm->hot as needed under a single lock acquisition. If another
// transition for the collection is already in flight the request is a
// no-op.
func (m *Manager) RequestPromotion(ctx context.Context, collectionID model.CollectionID) error {
	if m.closed.Load() {
		return ErrClosed
	}

	release, ok := m.locks.TryAcquire(collectionID)
	if !ok {
		return nil
	}
	defer release()

	if _, err := m.promoteFromCold(ctx, collectionID); err != nil {
		return err
	}

	_, err := m.promoteFromWarm(ctx, collectionID)

	return err
}

type transitionFn func(context.Context, model.CollectionID) (bool, error)

// RunCycle evaluates every collection against the policy once: idle
// collections cool down, frequently accessed ones climb back up, and the
// memory budget evicts the least recently used hot collections. Cold
// collections climb one tier per cycle; they reach hot on the next cycle
// if the accesses keep coming. Per-collection failures are logged and do
// not stop the cycle. It returns the number of completed transitions.
func (m *Manager) RunCycle(ctx context.Context) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}

	start := time.Now()
	now := start

	var moved atomic.Int64

	// 1. Idle hot collections cool down.
	hot, err := m.states.ListByTier(ctx, model.TierHot)
	if err != nil {
		return 0, fmt.Errorf("tiering: list hot collections: %w", err)
	}

	var cooling []model.CollectionID

	for _, st := range hot {
		if !st.Pinned && now.Sub(idleSince(st)) > m.policy.HotTTL {
			cooling = append(cooling, st.CollectionID)
		}
	}

	m.fanOut(ctx, cooling, m.demoteToWarm, &moved)

	if err := ctx.Err(); err != nil {
		return int(moved.Load()), err
	}

	// 2. Idle warm collections freeze.
	warm, err := m.states.ListByTier(ctx, model.TierWarm)
	if err != nil {
		return int(moved.Load()), fmt.Errorf("tiering: list warm collections: %w", err)
	}

	var freezing []model.CollectionID

	for _, st := range warm {
		if !st.Pinned && now.Sub(idleSince(st)) > m.policy.WarmTTL {
			freezing = append(freezing, st.CollectionID)
		}
	}

	m.fanOut(ctx, freezing, m.demoteToCold, &moved)

	if err := ctx.Err(); err != nil {
		return int(moved.Load()), err
	}

	// 3. Frequently accessed warm collections come back to memory.
	warm, err = m.states.ListByTier(ctx, model.TierWarm)
	if err != nil {
		return int(moved.Load()), fmt.Errorf("tiering: list warm collections: %w", err)
	}

	var promoting []model.CollectionID

	for _, st := range warm {
		if m.promotable(now, st) {
			promoting = append(promoting, st.CollectionID)
		}
	}

	m.fanOut(ctx, promoting, m.promoteFromWarm, &moved)

	if err := ctx.Err(); err != nil {
		return int(moved.Load()), err
	}

	// 4. Frequently accessed cold collections thaw to warm.
	cold, err := m.states.ListByTier(ctx, model.TierCold)
	if err != nil {
		return int(moved.Load()), fmt.Errorf("tiering: list cold collections: %w", err)
	}

	var thawing []model.CollectionID

	for _, st := range cold {
		if m.promotable(now, st) {
			thawing = append(thawing, st.CollectionID)
		}
	}

	m.fanOut(ctx, thawing, m.promoteFromCold, &moved)

	if err := ctx.Err(); err != nil {
		return int(moved.Load()), err
	}

	// 5. Enforce the hot-tier memory budget.
	if m.policy.MemoryBudgetBytes > 0 {
		if err := m.enforceMemoryBudget(ctx, &moved); err != nil {
			return int(moved.Load()), err
		}
	}

	transitions := int(moved.Load())

	m.observer.OnCycle(time.Since(start), transitions)
	m.logger.Debug("tiering cycle complete",
		"transitions", transitions,
		"duration", time.Since(start),
	)

	return transitions, nil
}

// fanOut runs one transition per collection with bounded concurrency.
func (m *Manager) fanOut(ctx context.Context, ids []model.CollectionID, fn transitionFn, moved *atomic.Int64) {
	if len(ids) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(m.policy.MaxConcurrentTransitions)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			m.tryTransition(ctx, id, fn, moved)
			return nil
		})
	}

	_ = g.Wait()
}

// tryTransition runs fn under the collection's lock. Collections already
// in flight are skipped, as are collections that turn out to be pinned
// once the lock is held. Other failures are logged.
func (m *Manager) tryTransition(ctx context.Context, collectionID model.CollectionID, fn transitionFn, moved *atomic.Int64) {
	release, ok := m.locks.TryAcquire(collectionID)
	if !ok {
		return
	}
	defer release()

	didMove, err := fn(ctx, collectionID)

	switch {
	case err == nil:
		if didMove {
			moved.Add(1)
		}
	case errors.Is(err, ErrPinned):
		// Pin state is re-read under the lock; a fresh pin wins
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		m.logger.Debug("transition abandoned", "collection", collectionID, "error", err)
	default:
		m.logger.Warn("transition failed", "collection", collectionID, "error", err)
	}
}

// enforceMemoryBudget demotes the least recently used hot collections
// until the combined resident size fits the budget. Pinned collections
// count toward the total but are never evicted.
func (m *Manager) enforceMemoryBudget(ctx context.Context, moved *atomic.Int64) error {
	hot, err := m.states.ListByTier(ctx, model.TierHot)
	if err != nil {
		return fmt.Errorf("tiering: list hot collections: %w", err)
	}

	type residency struct {
		state model.TierState
		bytes int64
	}

	var (
		total      int64
		candidates []residency
	)

	for _, st := range hot {
		bytes, err := m.source.MemoryBytes(ctx, st.CollectionID)
		if err != nil {
			m.logger.Warn("memory probe failed", "collection", st.CollectionID, "error", err)
			continue
		}

		total += bytes

		if !st.Pinned && bytes > 0 {
			candidates = append(candidates, residency{state: st, bytes: bytes})
		}
	}

	if total <= m.policy.MemoryBudgetBytes {
		return nil
	}

	// Least recently used first
	sort.Slice(candidates, func(i, j int) bool {
		return idleSince(candidates[i].state).Before(idleSince(candidates[j].state))
	})

	for _, cand := range candidates {
		if total <= m.policy.MemoryBudgetBytes {
			break
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		// Failures are logged inside; the next cycle re-evaluates
		m.tryTransition(ctx, cand.state.CollectionID, m.demoteToWarm, moved)

		total -= cand.bytes
	}

	return nil
}

// promotable reports whether the access counters justify moving a
// collection one tier up: the tracking window is still open and the count
// reached the threshold.
func (m *Manager) promotable(now time.Time, st model.TierState) bool {
	if st.AccessWindowStart.IsZero() {
		return false
	}

	if now.Sub(st.AccessWindowStart) >= m.policy.AccessWindow {
		return false
	}

	return st.AccessCount >= int64(m.policy.PromoteThreshold)
}

// idleSince is the reference point for idleness: the last recorded
// access, or the record's creation when it was never accessed.
func idleSince(st model.TierState) time.Time {
	if !st.LastAccessedAt.IsZero() {
		return st.LastAccessedAt
	}

	if !st.CreatedAt.IsZero() {
		return st.CreatedAt
	}

	return st.UpdatedAt
}

// demoteToWarm serializes a hot collection into the warm store and evicts
// the in-memory copy. The caller must hold the collection's lock.
func (m *Manager) demoteToWarm(ctx context.Context, collectionID model.CollectionID) (bool, error) {
	st, err := m.states.State(ctx, collectionID)
	if err != nil {
		return false, err
	}

	if st.Tier != model.TierHot {
		return false, nil
	}

	if st.Pinned {
		return false, ErrPinned
	}

	if err := m.controller.AcquireTransition(ctx); err != nil {
		return false, err
	}
	defer m.controller.ReleaseTransition()

	start := time.Now()

	docs, err := m.source.Documents(ctx, collectionID)
	if err != nil {
		return false, m.transitionFailed(model.TierHot, model.TierWarm, start, fmt.Errorf("tiering: read hot documents: %w", err))
	}

	if len(docs) == 0 {
		// Nothing resident: leave placement as is
		m.logger.Debug("demotion skipped, no resident documents", "collection", collectionID)
		return false, nil
	}

	data, err := snapshot.Encode(docs, m.compression)
	if err != nil {
		return false, m.transitionFailed(model.TierHot, model.TierWarm, start, fmt.Errorf("tiering: encode warm object: %w", err))
	}

	key := WarmKey(collectionID)

	if err := m.warm.Put(ctx, key, data); err != nil {
		return false, m.transitionFailed(model.TierHot, model.TierWarm, start, fmt.Errorf("tiering: write warm object: %w", err))
	}

	st.Tier = model.TierWarm
	st.WarmKey = key
	st.SnapshotID = ""

	if err := m.states.SetState(ctx, st); err != nil {
		return false, m.transitionFailed(model.TierHot, model.TierWarm, start, fmt.Errorf("tiering: record placement: %w", err))
	}

	// Eviction after the state write; a leftover resident copy is
	// replaced on the next promotion
	if err := m.source.Evict(ctx, collectionID); err != nil {
		m.logger.Warn("eviction failed", "collection", collectionID, "error", err)
	}

	m.observer.OnTransition(model.TierHot, model.TierWarm, time.Since(start), nil)
	m.logger.Info("collection demoted",
		"collection", collectionID,
		"from", model.TierHot,
		"to", model.TierWarm,
		"documents", len(docs),
		"bytes", len(data),
		"duration", time.Since(start),
	)

	return true, nil
}

// demoteToCold turns a warm object into a durable snapshot. The caller
// must hold the collection's lock.
func (m *Manager) demoteToCold(ctx context.Context, collectionID model.CollectionID) (bool, error) {
	st, err := m.states.State(ctx, collectionID)
	if err != nil {
		return false, err
	}

	if st.Tier != model.TierWarm {
		return false, nil
	}

	if st.Pinned {
		return false, ErrPinned
	}

	if err := m.controller.AcquireTransition(ctx); err != nil {
		return false, err
	}
	defer m.controller.ReleaseTransition()

	start := time.Now()

	data, err := m.warm.Get(ctx, st.WarmKey)
	if err != nil {
		return false, m.transitionFailed(model.TierWarm, model.TierCold, start, fmt.Errorf("tiering: read warm object: %w", err))
	}

	docs, err := snapshot.Decode(data)
	if err != nil {
		return false, m.transitionFailed(model.TierWarm, model.TierCold, start, fmt.Errorf("tiering: decode warm object: %w", err))
	}

	createStart := time.Now()

	meta, err := m.cold.Create(ctx, collectionID, docs)
	m.observer.OnSnapshotCreate(time.Since(createStart), meta.SizeBytes, err)

	if err != nil {
		return false, m.transitionFailed(model.TierWarm, model.TierCold, start, fmt.Errorf("tiering: create snapshot: %w", err))
	}

	warmKey := st.WarmKey

	st.Tier = model.TierCold
	st.SnapshotID = meta.SnapshotID
	st.WarmKey = ""

	if err := m.states.SetState(ctx, st); err != nil {
		return false, m.transitionFailed(model.TierWarm, model.TierCold, start, fmt.Errorf("tiering: record placement: %w", err))
	}

	// The warm object is redundant once the snapshot is committed
	if err := m.warm.Delete(ctx, warmKey); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		m.logger.Warn("warm object cleanup failed", "collection", collectionID, "key", warmKey, "error", err)
	}

	m.observer.OnTransition(model.TierWarm, model.TierCold, time.Since(start), nil)
	m.logger.Info("collection demoted",
		"collection", collectionID,
		"from", model.TierWarm,
		"to", model.TierCold,
		"snapshot", meta.SnapshotID,
		"documents", meta.VectorCount,
		"duration", time.Since(start),
	)

	return true, nil
}

// promoteFromCold restores a snapshot into a warm object. The snapshot
// itself is retained and ages out through retention cleanup. The caller
// must hold the collection's lock.
func (m *Manager) promoteFromCold(ctx context.Context, collectionID model.CollectionID) (bool, error) {
	st, err := m.states.State(ctx, collectionID)
	if err != nil {
		return false, err
	}

	if st.Tier != model.TierCold {
		return false, nil
	}

	if st.SnapshotID == "" {
		return false, fmt.Errorf("tiering: collection %s is cold without a snapshot reference", collectionID)
	}

	if err := m.controller.AcquireTransition(ctx); err != nil {
		return false, err
	}
	defer m.controller.ReleaseTransition()

	start := time.Now()

	restoreStart := time.Now()

	docs, err := m.cold.Restore(ctx, collectionID, st.SnapshotID)
	m.observer.OnSnapshotRestore(time.Since(restoreStart), err)

	if err != nil {
		return false, m.transitionFailed(model.TierCold, model.TierWarm, start, fmt.Errorf("tiering: restore snapshot: %w", err))
	}

	data, err := snapshot.Encode(docs, m.compression)
	if err != nil {
		return false, m.transitionFailed(model.TierCold, model.TierWarm, start, fmt.Errorf("tiering: encode warm object: %w", err))
	}

	key := WarmKey(collectionID)

	if err := m.warm.Put(ctx, key, data); err != nil {
		return false, m.transitionFailed(model.TierCold, model.TierWarm, start, fmt.Errorf("tiering: write warm object: %w", err))
	}

	st.Tier = model.TierWarm
	st.WarmKey = key
	st.SnapshotID = ""

	if err := m.states.SetState(ctx, st); err != nil {
		return false, m.transitionFailed(model.TierCold, model.TierWarm, start, fmt.Errorf("tiering: record placement: %w", err))
	}

	m.observer.OnTransition(model.TierCold, model.TierWarm, time.Since(start), nil)
	m.logger.Info("collection promoted",
		"collection", collectionID,
		"from", model.TierCold,
		"to", model.TierWarm,
		"documents", len(docs),
		"duration", time.Since(start),
	)

	return true, nil
}

// promoteFromWarm loads a warm object back into memory and restarts the
// access-tracking window, so the collection earns its next promotion from
// scratch. The caller must hold the collection's lock.
func (m *Manager) promoteFromWarm(ctx context.Context, collectionID model.CollectionID) (bool, error) {
	st, err := m.states.State(ctx, collectionID)
	if err != nil {
		return false, err
	}

	if st.Tier != model.TierWarm {
		return false, nil
	}

	if err := m.controller.AcquireTransition(ctx); err != nil {
		return false, err
	}
	defer m.controller.ReleaseTransition()

	start := time.Now()

	data, err := m.warm.Get(ctx, st.WarmKey)
	if err != nil {
		return false, m.transitionFailed(model.TierWarm, model.TierHot, start, fmt.Errorf("tiering: read warm object: %w", err))
	}

	docs, err := snapshot.Decode(data)
	if err != nil {
		return false, m.transitionFailed(model.TierWarm, model.TierHot, start, fmt.Errorf("tiering: decode warm object: %w", err))
	}

	if err := m.source.Load(ctx, collectionID, docs); err != nil {
		return false, m.transitionFailed(model.TierWarm, model.TierHot, start, fmt.Errorf("tiering: load into memory: %w", err))
	}

	warmKey := st.WarmKey

	st.Tier = model.TierHot
	st.WarmKey = ""

	if err := m.states.SetState(ctx, st); err != nil {
		return false, m.transitionFailed(model.TierWarm, model.TierHot, start, fmt.Errorf("tiering: record placement: %w", err))
	}

	if err := m.warm.Delete(ctx, warmKey); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		m.logger.Warn("warm object cleanup failed", "collection", collectionID, "key", warmKey, "error", err)
	}

	if err := m.states.ResetWindow(ctx, collectionID); err != nil {
		m.logger.Warn("window reset failed", "collection", collectionID, "error", err)
	}

	m.observer.OnTransition(model.TierWarm, model.TierHot, time.Since(start), nil)
	m.logger.Info("collection promoted",
		"collection", collectionID,
		"from", model.TierWarm,
		"to", model.TierHot,
		"documents", len(docs),
		"duration", time.Since(start),
	)

	return true, nil
}

// transitionFailed notifies the observer and passes the error through.
func (m *Manager) transitionFailed(from, to model.Tier, start time.Time, err error) error {
	m.observer.OnTransition(from, to, time.Since(start), err)
	return err
}

// Start launches the background worker that runs an evaluation cycle
// every Policy.WorkerInterval. Start is idempotent; a closed manager
// refuses to start.
func (m *Manager) Start() error {
	if m.closed.Load() {
		return ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	m.started = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.worker(ctx)

	return nil
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.policy.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if _, err := m.RunCycle(ctx); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
				m.logger.Warn("tiering cycle failed", "error", err)
			}
		}
	}
}

// Close stops the background worker and waits for an in-flight cycle to
// drain. Close is idempotent and always returns nil.
func (m *Manager) Close() error {
	// Mark as closed (atomic, idempotent)
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	close(m.stopCh)

	if cancel != nil {
		cancel()
	}

	m.wg.Wait()

	return nil
}

package tiering

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tiergo/model"
	"github.com/hupe1980/tiergo/objectstore"
	"github.com/hupe1980/tiergo/snapshot"
	"github.com/hupe1980/tiergo/tierstate"
)

// testDocs builds deterministic documents for transition tests.
func testDocs(n, dim int) []model.VectorDocument {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	docs := make([]model.VectorDocument, n)
	for i := range docs {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(i)*0.25 + float32(j)*0.5
		}

		docs[i] = model.VectorDocument{
			ID:         model.DocumentID(i + 1),
			Vector:     vec,
			InsertedAt: base.Add(time.Duration(i) * time.Second),
		}

		if i%2 == 1 {
			docs[i].ExternalID = fmt.Sprintf("doc-%04d", i)
		}

		if i%3 == 0 {
			docs[i].Metadata = map[string]any{
				"source": "unit",
				"score":  float64(i) * 1.5,
			}
		}
	}

	return docs
}

// captureObserver records completed transitions as "from>to" labels.
type captureObserver struct {
	mu        sync.Mutex
	moves     []string
	failed    int
	cycles    int
	snapshots int
	restores  int
}

func (o *captureObserver) OnTransition(from, to model.Tier, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.failed++
		return
	}

	o.moves = append(o.moves, from.String()+">"+to.String())
}

func (o *captureObserver) OnSnapshotCreate(duration time.Duration, sizeBytes int64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err == nil {
		o.snapshots++
	}
}

func (o *captureObserver) OnSnapshotRestore(duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err == nil {
		o.restores++
	}
}

func (o *captureObserver) OnCycle(duration time.Duration, transitions int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cycles++
}

func (o *captureObserver) transitions() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]string(nil), o.moves...)
}

type tierHarness struct {
	states *tierstate.MemoryStore
	cold   *objectstore.MemoryStore
	warm   *objectstore.MemoryStore
	source *MemoryCollectionStore
	obs    *captureObserver
	mgr    *Manager
}

func newTierHarness(t *testing.T, policy Policy) *tierHarness {
	t.Helper()

	h := &tierHarness{
		states: tierstate.NewMemoryStore(policy.AccessWindow),
		cold:   objectstore.NewMemoryStore(),
		warm:   objectstore.NewMemoryStore(),
		source: NewMemoryCollectionStore(),
		obs:    &captureObserver{},
	}

	mgr, err := NewManager(ManagerConfig{
		Policy:   policy,
		States:   h.states,
		Cold:     snapshot.New(h.cold),
		Warm:     h.warm,
		Source:   h.source,
		Observer: h.obs,
	})
	require.NoError(t, err)

	h.mgr = mgr

	return h
}

// seedHot loads documents into memory and records one access, leaving the
// collection hot with a fresh placement record.
func (h *tierHarness) seedHot(t *testing.T, id model.CollectionID, docs []model.VectorDocument) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, h.source.Load(ctx, id, docs))
	require.NoError(t, h.states.RecordAccess(ctx, id))
}

// backdateAccess rewrites LastAccessedAt so idleness checks see an old
// collection without the test having to sleep.
func (h *tierHarness) backdateAccess(t *testing.T, id model.CollectionID, age time.Duration) {
	t.Helper()

	ctx := context.Background()

	st, err := h.states.State(ctx, id)
	require.NoError(t, err)

	st.LastAccessedAt = time.Now().Add(-age)
	require.NoError(t, h.states.SetState(ctx, st))
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.PromoteThreshold = 3

	return p
}

func TestNewManager_Validation(t *testing.T) {
	states := tierstate.NewMemoryStore(0)
	cold := snapshot.New(objectstore.NewMemoryStore())
	warm := objectstore.NewMemoryStore()
	source := NewMemoryCollectionStore()

	_, err := NewManager(ManagerConfig{Cold: cold, Warm: warm, Source: source})
	require.Error(t, err)

	_, err = NewManager(ManagerConfig{States: states, Warm: warm, Source: source})
	require.Error(t, err)

	_, err = NewManager(ManagerConfig{States: states, Cold: cold, Source: source})
	require.Error(t, err)

	_, err = NewManager(ManagerConfig{States: states, Cold: cold, Warm: warm})
	require.Error(t, err)

	// A partial policy is rejected rather than silently patched
	_, err = NewManager(ManagerConfig{
		States: states, Cold: cold, Warm: warm, Source: source,
		Policy: Policy{HotTTL: time.Hour},
	})
	require.Error(t, err)

	// The zero policy means defaults
	mgr, err := NewManager(ManagerConfig{States: states, Cold: cold, Warm: warm, Source: source})
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), mgr.policy)
}

func TestManager_RequestDemotionToCold(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	docs := testDocs(20, 8)
	h.seedHot(t, "c1", docs)

	require.NoError(t, h.mgr.RequestDemotion(ctx, "c1"))

	st, err := h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierCold, st.Tier)
	assert.NotEmpty(t, st.SnapshotID)
	assert.Empty(t, st.WarmKey)

	// Memory and the warm staging object are both gone
	assert.False(t, h.source.Contains("c1"))
	assert.Equal(t, 0, h.warm.Len())

	// Exactly one snapshot pair was committed
	keys, err := h.cold.List(ctx, snapshot.CollectionPrefix("c1"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	assert.Equal(t, []string{"hot>warm", "warm>cold"}, h.obs.transitions())
	assert.Equal(t, 1, h.obs.snapshots)

	// Demoting an already cold collection is a no-op
	require.NoError(t, h.mgr.RequestDemotion(ctx, "c1"))

	keys, err = h.cold.List(ctx, snapshot.CollectionPrefix("c1"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestManager_RequestPromotionToHot(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	docs := testDocs(12, 16)
	h.seedHot(t, "c1", docs)
	require.NoError(t, h.mgr.RequestDemotion(ctx, "c1"))

	require.NoError(t, h.mgr.RequestPromotion(ctx, "c1"))

	st, err := h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierHot, st.Tier)
	assert.Empty(t, st.WarmKey)
	assert.Empty(t, st.SnapshotID)

	// The tracking window restarted with the promotion
	assert.Zero(t, st.AccessCount)

	restored, err := h.source.Documents(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, restored, len(docs))

	for i, doc := range restored {
		assert.Equal(t, docs[i].ID, doc.ID)
		assert.Equal(t, docs[i].ExternalID, doc.ExternalID)
		assert.Equal(t, docs[i].Vector, doc.Vector)
	}

	// The snapshot stays behind for retention cleanup
	keys, err := h.cold.List(ctx, snapshot.CollectionPrefix("c1"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	assert.Equal(t, 0, h.warm.Len())
	assert.Equal(t, 1, h.obs.restores)

	// Promoting an already hot collection is a no-op
	require.NoError(t, h.mgr.RequestPromotion(ctx, "c1"))
}

func TestManager_ConcurrentDemotionRequests(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	h.seedHot(t, "c1", testDocs(50, 8))

	const callers = 10

	var wg sync.WaitGroup

	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			errs[i] = h.mgr.RequestDemotion(ctx, "c1")
		}()
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	st, err := h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierCold, st.Tier)

	// The chain executed exactly once, no matter how many callers raced
	assert.Equal(t, []string{"hot>warm", "warm>cold"}, h.obs.transitions())

	keys, err := h.cold.List(ctx, snapshot.CollectionPrefix("c1"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	// Every lock entry was reclaimed
	assert.Equal(t, 0, h.mgr.locks.Len())
}

func TestManager_PinnedDemotionRefused(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	h.seedHot(t, "c1", testDocs(5, 4))
	require.NoError(t, h.mgr.Pin(ctx, "c1"))

	require.ErrorIs(t, h.mgr.RequestDemotion(ctx, "c1"), ErrPinned)

	st, err := h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierHot, st.Tier)
	assert.True(t, h.source.Contains("c1"))
	assert.Equal(t, 0, h.warm.Len())

	require.NoError(t, h.mgr.Unpin(ctx, "c1"))
	require.NoError(t, h.mgr.RequestDemotion(ctx, "c1"))

	st, err = h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierCold, st.Tier)
}

func TestManager_CycleDemotesIdleCollections(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	h.seedHot(t, "c1", testDocs(10, 8))
	h.backdateAccess(t, "c1", 7*time.Hour)

	moved, err := h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	st, err := h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierWarm, st.Tier)
	assert.NotEmpty(t, st.WarmKey)
	assert.True(t, h.warm.Contains(st.WarmKey))
	assert.False(t, h.source.Contains("c1"))

	// Idle long past the warm TTL, the next cycle freezes it
	h.backdateAccess(t, "c1", 8*24*time.Hour)

	moved, err = h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	st, err = h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierCold, st.Tier)
	assert.NotEmpty(t, st.SnapshotID)
	assert.Equal(t, 0, h.warm.Len())

	assert.Equal(t, 2, h.obs.cycles)
}

func TestManager_CycleSkipsPinned(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	h.seedHot(t, "protected", testDocs(5, 4))
	h.seedHot(t, "idle", testDocs(5, 4))

	h.backdateAccess(t, "protected", 12*time.Hour)
	h.backdateAccess(t, "idle", 12*time.Hour)

	require.NoError(t, h.mgr.Pin(ctx, "protected"))

	moved, err := h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	st, err := h.mgr.TierStatus(ctx, "protected")
	require.NoError(t, err)
	assert.Equal(t, model.TierHot, st.Tier)

	st, err = h.mgr.TierStatus(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, model.TierWarm, st.Tier)

	// Unpinning re-enables demotion on the next cycle
	require.NoError(t, h.mgr.Unpin(ctx, "protected"))

	moved, err = h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	st, err = h.mgr.TierStatus(ctx, "protected")
	require.NoError(t, err)
	assert.Equal(t, model.TierWarm, st.Tier)
}

func TestManager_CyclePromotesFrequentWarm(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	now := time.Now()

	// Stage two warm collections by hand: one above the promote
	// threshold, one below.
	for _, tc := range []struct {
		id    model.CollectionID
		count int64
	}{
		{"busy", 3},
		{"quiet", 2},
	} {
		data, err := snapshot.Encode(testDocs(10, 8), snapshot.CompressionNone)
		require.NoError(t, err)

		key := WarmKey(tc.id)
		require.NoError(t, h.warm.Put(ctx, key, data))

		require.NoError(t, h.states.SetState(ctx, model.TierState{
			CollectionID:      tc.id,
			Tier:              model.TierWarm,
			WarmKey:           key,
			LastAccessedAt:    now,
			AccessCount:       tc.count,
			AccessWindowStart: now.Add(-time.Minute),
		}))
	}

	moved, err := h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	st, err := h.mgr.TierStatus(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, model.TierHot, st.Tier)
	assert.Empty(t, st.WarmKey)
	assert.Zero(t, st.AccessCount)
	assert.True(t, h.source.Contains("busy"))

	st, err = h.mgr.TierStatus(ctx, "quiet")
	require.NoError(t, err)
	assert.Equal(t, model.TierWarm, st.Tier)
	assert.False(t, h.source.Contains("quiet"))
}

func TestManager_CycleClimbsColdCollection(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	h.seedHot(t, "c1", testDocs(15, 8))
	require.NoError(t, h.mgr.RequestDemotion(ctx, "c1"))

	// A burst of reads within the tracking window
	for i := 0; i < 3; i++ {
		h.mgr.RecordAccess(ctx, "c1")
	}

	moved, err := h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	st, err := h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierWarm, st.Tier, "cold collections climb one tier per cycle")

	moved, err = h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	st, err = h.mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierHot, st.Tier)
	assert.True(t, h.source.Contains("c1"))
}

func TestManager_MemoryBudgetEvictsLRU(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	for i, id := range []model.CollectionID{"oldest", "middle", "newest"} {
		h.seedHot(t, id, testDocs(10, 8))
		h.backdateAccess(t, id, time.Duration(3-i)*time.Minute)
	}

	perCollection, err := h.source.MemoryBytes(ctx, "newest")
	require.NoError(t, err)
	require.Positive(t, perCollection)

	// Budget fits exactly one resident collection
	h.mgr.policy.MemoryBudgetBytes = perCollection + 1

	moved, err := h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	for id, want := range map[model.CollectionID]model.Tier{
		"oldest": model.TierWarm,
		"middle": model.TierWarm,
		"newest": model.TierHot,
	} {
		st, err := h.mgr.TierStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, st.Tier, "collection %s", id)
	}
}

func TestManager_MemoryBudgetSkipsPinned(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	h.seedHot(t, "precious", testDocs(10, 8))
	h.seedHot(t, "fresh", testDocs(10, 8))

	// precious is the LRU candidate but pinned
	h.backdateAccess(t, "precious", 10*time.Minute)
	require.NoError(t, h.mgr.Pin(ctx, "precious"))

	perCollection, err := h.source.MemoryBytes(ctx, "fresh")
	require.NoError(t, err)

	h.mgr.policy.MemoryBudgetBytes = perCollection + 1

	moved, err := h.mgr.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	st, err := h.mgr.TierStatus(ctx, "precious")
	require.NoError(t, err)
	assert.Equal(t, model.TierHot, st.Tier)

	st, err = h.mgr.TierStatus(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.TierWarm, st.Tier)
}

func TestManager_TransitionFailureKeepsTier(t *testing.T) {
	ctx := context.Background()

	states := tierstate.NewMemoryStore(0)
	warm := objectstore.NewMemoryStore(objectstore.WithAlwaysFail(objectstore.ErrServer))
	source := NewMemoryCollectionStore()

	mgr, err := NewManager(ManagerConfig{
		States: states,
		Cold:   snapshot.New(objectstore.NewMemoryStore()),
		Warm:   warm,
		Source: source,
	})
	require.NoError(t, err)

	require.NoError(t, source.Load(ctx, "c1", testDocs(5, 4)))
	require.NoError(t, states.RecordAccess(ctx, "c1"))

	require.ErrorIs(t, mgr.RequestDemotion(ctx, "c1"), objectstore.ErrServer)

	// The failed demotion left the collection hot and resident
	st, err := mgr.TierStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.TierHot, st.Tier)
	assert.True(t, source.Contains("c1"))
}

func TestManager_EmptyCollectionNotDemoted(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	// Placement record exists but nothing is resident
	require.NoError(t, h.states.RecordAccess(ctx, "ghost"))

	require.NoError(t, h.mgr.RequestDemotion(ctx, "ghost"))

	st, err := h.mgr.TierStatus(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, model.TierHot, st.Tier)
	assert.Equal(t, 0, h.warm.Len())
}

func TestManager_TierMetrics(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	h.seedHot(t, "h1", testDocs(5, 4))
	h.seedHot(t, "h2", testDocs(5, 4))
	h.seedHot(t, "w1", testDocs(5, 4))
	h.seedHot(t, "k1", testDocs(5, 4))

	require.NoError(t, h.mgr.RequestDemotion(ctx, "k1"))

	st, err := h.states.State(ctx, "w1")
	require.NoError(t, err)
	st.Tier = model.TierWarm
	require.NoError(t, h.states.SetState(ctx, st))

	counts, err := h.mgr.TierMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Hot)
	assert.Equal(t, 1, counts.Warm)
	assert.Equal(t, 1, counts.Cold)
	assert.Equal(t, 4, counts.Total())
}

func TestManager_RecordAccessSwallowsErrors(t *testing.T) {
	h := newTierHarness(t, testPolicy())

	// Empty ids are rejected by the state store; the manager only logs
	h.mgr.RecordAccess(context.Background(), "")
}

func TestManager_StartClose(t *testing.T) {
	ctx := context.Background()
	h := newTierHarness(t, testPolicy())

	require.NoError(t, h.mgr.Start())
	require.NoError(t, h.mgr.Start())

	require.NoError(t, h.mgr.Close())
	require.NoError(t, h.mgr.Close())

	require.ErrorIs(t, h.mgr.RequestDemotion(ctx, "c1"), ErrClosed)
	require.ErrorIs(t, h.mgr.RequestPromotion(ctx, "c1"), ErrClosed)

	_, err := h.mgr.RunCycle(ctx)
	require.ErrorIs(t, err, ErrClosed)

	require.ErrorIs(t, h.mgr.Start(), ErrClosed)
}

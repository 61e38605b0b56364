package integration_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/tiergo"
	"github.com/hupe1980/tiergo/model"
	"github.com/hupe1980/tiergo/objectstore"
	"github.com/hupe1980/tiergo/testutil"
	"github.com/hupe1980/tiergo/tiering"
	"github.com/hupe1980/tiergo/tierstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backdate(t *testing.T, states tierstate.Store, id model.CollectionID, age time.Duration) {
	t.Helper()

	ctx := context.Background()

	st, err := states.State(ctx, id)
	require.NoError(t, err)

	st.LastAccessedAt = time.Now().Add(-age)
	require.NoError(t, states.SetState(ctx, st))
}

func TestE2E_Restart(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()

	rng := testutil.NewRNG(99)
	docs := rng.Documents(25, 6)

	// Durable stand-ins shared across both "processes".
	states := tierstate.NewMemoryStore(time.Hour)
	cold := objectstore.NewLocalStore(filepath.Join(baseDir, "snapshots"))

	// 1. First process: load, archive, shut down
	source1 := tiering.NewMemoryCollectionStore()
	tg1, err := tiergo.New(source1, cold,
		tiergo.WithStateStore(states),
		tiergo.WithWarmDir(filepath.Join(baseDir, "warm")),
	)
	require.NoError(t, err)

	require.NoError(t, source1.Load(ctx, "survivor", docs))
	tg1.RecordAccess(ctx, "survivor")

	require.NoError(t, tg1.RequestDemotion(ctx, "survivor"))
	require.NoError(t, tg1.Close())

	// 2. Second process: same durable stores, empty memory
	source2 := tiering.NewMemoryCollectionStore()
	tg2, err := tiergo.New(source2, cold,
		tiergo.WithStateStore(states),
		tiergo.WithWarmDir(filepath.Join(baseDir, "warm")),
	)
	require.NoError(t, err)
	defer tg2.Close()

	st, err := tg2.TierStatus(ctx, "survivor")
	require.NoError(t, err)
	require.Equal(t, model.TierCold, st.Tier)

	// 3. Restore and verify
	require.NoError(t, tg2.RequestPromotion(ctx, "survivor"))

	restored, err := source2.Documents(ctx, "survivor")
	require.NoError(t, err)
	require.Len(t, restored, len(docs))

	sort.Slice(restored, func(i, j int) bool { return restored[i].ID < restored[j].ID })
	for i, doc := range restored {
		assert.Equal(t, docs[i].ID, doc.ID)
		assert.Equal(t, docs[i].ExternalID, doc.ExternalID)
		assert.Equal(t, docs[i].Vector, doc.Vector)
	}
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()

	const collections = 12
	const docsPer = 40
	const dim = 8

	rng := testutil.NewRNG(4711)

	source := tiering.NewMemoryCollectionStore()
	states := tierstate.NewMemoryStore(time.Hour)
	cold := objectstore.NewMemoryStore(objectstore.WithoutHistory())

	tg, err := tiergo.New(source, cold, tiergo.WithStateStore(states))
	require.NoError(t, err)
	defer tg.Close()

	// 1. Load and access every collection
	loaded := make(map[model.CollectionID][]model.VectorDocument, collections)
	ids := make([]model.CollectionID, 0, collections)
	for i := 0; i < collections; i++ {
		id := model.CollectionID(fmt.Sprintf("col-%02d", i))
		docs := rng.Documents(docsPer, dim)
		require.NoError(t, source.Load(ctx, id, docs))
		tg.RecordAccess(ctx, id)

		loaded[id] = docs
		ids = append(ids, id)
	}

	// 2. Popular head stays busy, long tail idles past the hot TTL
	for _, hit := range rng.ZipfAccesses(300, 4, 1.5) {
		tg.RecordAccess(ctx, ids[hit])
	}
	for _, id := range ids[4:] {
		backdate(t, states, id, 7*time.Hour)
	}

	moved, err := tg.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, moved)

	counts, err := tg.TierMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Hot)
	assert.Equal(t, 8, counts.Warm)
	assert.Equal(t, collections, counts.Total())

	// 3. Half the tail ages past the warm TTL and freezes to cold
	for _, id := range ids[8:] {
		backdate(t, states, id, 8*24*time.Hour)
	}

	moved, err = tg.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, moved)

	counts, err = tg.TierMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Hot)
	assert.Equal(t, 4, counts.Warm)
	assert.Equal(t, 4, counts.Cold)

	// Cold placements always reference a restorable snapshot
	for _, id := range ids[8:] {
		st, err := tg.TierStatus(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.TierCold, st.Tier)
		require.NotEmpty(t, st.SnapshotID)

		metas, err := tg.Snapshots(ctx, id)
		require.NoError(t, err)
		require.NotEmpty(t, metas)
		assert.Equal(t, st.SnapshotID, metas[0].SnapshotID)
	}

	// Only hot collections hold memory
	for i, id := range ids {
		assert.Equal(t, i < 4, source.Contains(id), "collection %s residency", id)
	}

	// 4. Promote everything back and verify nothing was lost
	for _, id := range ids {
		require.NoError(t, tg.RequestPromotion(ctx, id))
	}

	counts, err = tg.TierMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, collections, counts.Hot)

	for _, id := range ids {
		docs, err := source.Documents(ctx, id)
		require.NoError(t, err)
		require.Len(t, docs, docsPer, "collection %s", id)

		sort.Slice(docs, func(a, b int) bool { return docs[a].ID < docs[b].ID })
		for j, doc := range docs {
			assert.Equal(t, loaded[id][j].ID, doc.ID)
			assert.Equal(t, loaded[id][j].Vector, doc.Vector)
		}
	}
}

func TestConcurrentWorkload(t *testing.T) {
	ctx := context.Background()

	const collections = 8

	rng := testutil.NewRNG(1234)

	source := tiering.NewMemoryCollectionStore()
	cold := objectstore.NewMemoryStore(objectstore.WithoutHistory())

	tg, err := tiergo.New(source, cold)
	require.NoError(t, err)
	defer tg.Close()

	ids := make([]model.CollectionID, collections)
	sizes := make(map[model.CollectionID]int, collections)
	for i := range ids {
		ids[i] = model.CollectionID(fmt.Sprintf("col-%d", i))
		n := 10 + rng.Intn(30)
		require.NoError(t, source.Load(ctx, ids[i], rng.Documents(n, 5)))
		tg.RecordAccess(ctx, ids[i])

		sizes[ids[i]] = n
	}

	// Mixed demotions, promotions and accesses racing on the same
	// collections; the per-collection lock turns overlap into no-ops.
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := 0; i < 50; i++ {
				id := ids[(w*50+i)%collections]

				switch i % 3 {
				case 0:
					tg.RecordAccess(ctx, id)
				case 1:
					assert.NoError(t, tg.RequestDemotion(ctx, id))
				default:
					assert.NoError(t, tg.RequestPromotion(ctx, id))
				}
			}
		}()
	}
	wg.Wait()

	// Every collection sits in exactly one tier...
	counts, err := tg.TierMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, collections, counts.Total())

	// ...and climbs back to hot with its documents intact.
	for _, id := range ids {
		require.NoError(t, tg.RequestPromotion(ctx, id))

		docs, err := source.Documents(ctx, id)
		require.NoError(t, err)
		assert.Len(t, docs, sizes[id], "collection %s", id)
	}

	counts, err = tg.TierMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, collections, counts.Hot)
}

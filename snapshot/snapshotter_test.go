package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/tiergo/model"
	"github.com/hupe1980/tiergo/objectstore"
	"github.com/stretchr/testify/require"
)

func TestSnapshotter_CreateRestore(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	snap := New(store)

	docs := testDocs(25, 8)

	// 1. Create uploads a data/metadata pair
	meta, err := snap.Create(ctx, "col-1", docs)
	require.NoError(t, err)
	require.NotEmpty(t, meta.SnapshotID)
	require.Equal(t, model.CollectionID("col-1"), meta.CollectionID)
	require.Equal(t, 25, meta.VectorCount)
	require.Equal(t, 8, meta.Dimension)
	require.Equal(t, "zstd", meta.Compression)
	require.True(t, store.Contains(DataKey("col-1", meta.SnapshotID)))
	require.True(t, store.Contains(MetadataKey("col-1", meta.SnapshotID)))

	// 2. Restore round-trips the documents
	restored, err := snap.Restore(ctx, "col-1", meta.SnapshotID)
	require.NoError(t, err)
	require.Len(t, restored, len(docs))
	for i := range docs {
		require.Equal(t, docs[i].ID, restored[i].ID)
		require.Equal(t, docs[i].ExternalID, restored[i].ExternalID)
	}

	// 3. Unknown snapshot id reports NotFound
	_, err = snap.Restore(ctx, "col-1", "no-such-snapshot")
	require.ErrorIs(t, err, objectstore.ErrNotFound)

	// 4. Delete then Restore reports NotFound
	require.NoError(t, snap.Delete(ctx, "col-1", meta.SnapshotID))
	_, err = snap.Restore(ctx, "col-1", meta.SnapshotID)
	require.ErrorIs(t, err, objectstore.ErrNotFound)

	// 5. Delete is idempotent
	require.NoError(t, snap.Delete(ctx, "col-1", meta.SnapshotID))
}

func TestSnapshotter_CreateValidation(t *testing.T) {
	ctx := context.Background()
	snap := New(objectstore.NewMemoryStore())

	_, err := snap.Create(ctx, "col-1", nil)
	require.ErrorIs(t, err, ErrValidation)

	docs := testDocs(4, 8)
	docs[2].Vector = make([]float32, 3)
	_, err = snap.Create(ctx, "col-1", docs)
	require.ErrorIs(t, err, ErrValidation)

	_, err = snap.Create(ctx, "", testDocs(1, 2))
	require.ErrorIs(t, err, ErrValidation)
}

func TestSnapshotter_MetadataUploadFailureLeavesNoSnapshot(t *testing.T) {
	ctx := context.Background()
	// First put (data) succeeds, second put (metadata) fails.
	store := objectstore.NewMemoryStore(objectstore.WithFailures(nil, objectstore.ErrServer))
	snap := New(store)

	_, err := snap.Create(ctx, "col-1", testDocs(5, 4))
	require.ErrorIs(t, err, objectstore.ErrServer)

	// The orphaned data object was cleaned up; nothing is restorable.
	keys, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestSnapshotter_List(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	snap := New(store, WithCompression(CompressionLZ4))

	var created []model.SnapshotMetadata
	for i := 0; i < 4; i++ {
		meta, err := snap.Create(ctx, "col-1", testDocs(3+i, 4))
		require.NoError(t, err)
		created = append(created, meta)
		time.Sleep(2 * time.Millisecond) // Distinct CreatedAt per snapshot
	}

	// A snapshot of another collection stays invisible.
	_, err := snap.Create(ctx, "col-2", testDocs(2, 4))
	require.NoError(t, err)

	metas, err := snap.List(ctx, "col-1")
	require.NoError(t, err)
	require.Len(t, metas, len(created))

	// Newest first.
	for i := 1; i < len(metas); i++ {
		require.False(t, metas[i-1].CreatedAt.Before(metas[i].CreatedAt))
	}
	require.Equal(t, created[len(created)-1].SnapshotID, metas[0].SnapshotID)
}

func TestSnapshotter_ListEmpty(t *testing.T) {
	ctx := context.Background()
	snap := New(objectstore.NewMemoryStore())

	metas, err := snap.List(ctx, "never-seen")
	require.NoError(t, err)
	require.Empty(t, metas)
}

func TestSnapshotter_CleanupOld(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	snap := New(store)

	old, err := snap.Create(ctx, "col-1", testDocs(3, 4))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	fresh, err := snap.Create(ctx, "col-1", testDocs(3, 4))
	require.NoError(t, err)

	// Retention shorter than the old snapshot's age but longer than the
	// fresh one's.
	deleted, err := snap.CleanupOld(ctx, "col-1", 20*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = snap.Restore(ctx, "col-1", old.SnapshotID)
	require.ErrorIs(t, err, objectstore.ErrNotFound)

	restored, err := snap.Restore(ctx, "col-1", fresh.SnapshotID)
	require.NoError(t, err)
	require.Len(t, restored, 3)

	// The most recent snapshot survives any retention, even zero: it may
	// be the only remaining copy of the collection.
	deleted, err = snap.CleanupOld(ctx, "col-1", 0)
	require.NoError(t, err)
	require.Equal(t, 0, deleted)

	restored, err = snap.Restore(ctx, "col-1", fresh.SnapshotID)
	require.NoError(t, err)
	require.Len(t, restored, 3)
}

func TestSnapshotter_CleanupOrphans(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	snap := New(store)

	meta, err := snap.Create(ctx, "col-1", testDocs(3, 4))
	require.NoError(t, err)

	// Simulate a crash between the data and metadata uploads.
	orphanKey := DataKey("col-1", "00000000-dead-beef-0000-000000000000")
	require.NoError(t, store.Put(ctx, orphanKey, []byte("partial")))

	removed, err := snap.CleanupOrphans(ctx, "col-1")
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.False(t, store.Contains(orphanKey))

	// The committed snapshot is untouched.
	restored, err := snap.Restore(ctx, "col-1", meta.SnapshotID)
	require.NoError(t, err)
	require.Len(t, restored, 3)
}

package tiering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCollectionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCollectionStore()

	docs := testDocs(5, 8)
	require.NoError(t, store.Load(ctx, "c1", docs))

	assert.True(t, store.Contains("c1"))
	assert.Equal(t, 1, store.Len())

	got, err := store.Documents(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 5)

	// The resident copy is insulated from caller mutation
	got[0].ExternalID = "mutated"

	again, err := store.Documents(ctx, "c1")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].ExternalID)

	size, err := store.MemoryBytes(ctx, "c1")
	require.NoError(t, err)
	assert.Positive(t, size)

	require.NoError(t, store.Evict(ctx, "c1"))
	assert.False(t, store.Contains("c1"))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryCollectionStore_Missing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCollectionStore()

	docs, err := store.Documents(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, docs)

	size, err := store.MemoryBytes(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, store.Evict(ctx, "unknown"))
}

func TestMemoryCollectionStore_EmptyID(t *testing.T) {
	store := NewMemoryCollectionStore()

	assert.Error(t, store.Load(context.Background(), "", nil))
}

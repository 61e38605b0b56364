package minio

import (
	"context"
	"net/http"
	"testing"

	"github.com/hupe1980/tiergo/objectstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		in   minio.ErrorResponse
		want error
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, objectstore.ErrNotFound},
		{"not found", minio.ErrorResponse{Code: "NotFound", StatusCode: http.StatusNotFound}, objectstore.ErrNotFound},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, objectstore.ErrForbidden},
		{"slow down", minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusTooManyRequests}, objectstore.ErrThrottle},
		{"internal error", minio.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, objectstore.ErrServer},
		{"unknown code 503", minio.ErrorResponse{Code: "Backoff", StatusCode: http.StatusServiceUnavailable}, objectstore.ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.in, "k")
			require.ErrorIs(t, got, tt.want)
		})
	}

	require.NoError(t, translateError(nil, "k"))
	require.ErrorIs(t, translateError(context.DeadlineExceeded, "k"), objectstore.ErrTimeout)
}

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	bucket := "test-tiergo"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	// Put and Get
	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "snapshots/c1/a.data", data))

	got, err := store.Get(ctx, "snapshots/c1/a.data")
	require.NoError(t, err)
	require.Equal(t, data, got)

	// List
	keys, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	require.Contains(t, keys, "snapshots/c1/a.data")

	// Delete, then absent key reports NotFound
	require.NoError(t, store.Delete(ctx, "snapshots/c1/a.data"))
	err = store.Delete(ctx, "snapshots/c1/a.data")
	require.ErrorIs(t, err, objectstore.ErrNotFound)

	_, err = store.Get(ctx, "snapshots/c1/a.data")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}

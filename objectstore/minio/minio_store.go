package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/tiergo/objectstore"
	"github.com/minio/minio-go/v7"
)

// Store implements objectstore.ObjectStore for MinIO and S3-compatible storage.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a new MinIO object store.
// rootPrefix is prepended to all keys (e.g. "prod/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put writes an object atomically.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	fullKey := s.key(key)
	_, err := s.client.PutObject(ctx, s.bucket, fullKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return translateError(err, key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := s.key(key)

	obj, err := s.client.GetObject(ctx, s.bucket, fullKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(err, key)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; absent keys surface on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError(err, key)
	}
	return data, nil
}

// Delete removes an object. MinIO removes are idempotent, so a StatObject
// runs first to report absent keys as NotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	fullKey := s.key(key)

	if _, err := s.client.StatObject(ctx, s.bucket, fullKey, minio.StatObjectOptions{}); err != nil {
		return translateError(err, key)
	}

	err := s.client.RemoveObject(ctx, s.bucket, fullKey, minio.RemoveObjectOptions{})
	return translateError(err, key)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, translateError(obj.Err, prefix)
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			keys = append(keys, name)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// translateError maps MinIO errors onto the objectstore taxonomy.
func translateError(err error, key string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", objectstore.ErrTimeout, key, err)
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return fmt.Errorf("%w: %s", objectstore.ErrNotFound, key)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %s: %s", objectstore.ErrForbidden, key, resp.Code)
	case "SlowDown", "TooManyRequests", "RequestLimitExceeded":
		return fmt.Errorf("%w: %s", objectstore.ErrThrottle, key)
	case "InternalError", "ServiceUnavailable":
		return fmt.Errorf("%w: %s: %s", objectstore.ErrServer, key, resp.Code)
	case "RequestTimeout":
		return fmt.Errorf("%w: %s", objectstore.ErrTimeout, key)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", objectstore.ErrNotFound, key)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", objectstore.ErrForbidden, key)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", objectstore.ErrThrottle, key)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s: status %d", objectstore.ErrServer, key, resp.StatusCode)
	}

	return err
}

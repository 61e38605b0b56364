package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/tiergo/model"
	"github.com/hupe1980/tiergo/objectstore"
	"golang.org/x/sync/errgroup"
)

// FormatName is the format identifier recorded in snapshot metadata.
const FormatName = "snp0/1"

const (
	dataSuffix     = ".data"
	metadataSuffix = ".metadata"

	// listConcurrency bounds the metadata fetch fan-out in List.
	listConcurrency = 8
)

// DataKey returns the object key of a snapshot's data object.
func DataKey(collectionID model.CollectionID, snapshotID model.SnapshotID) string {
	return path.Join("snapshots", string(collectionID), string(snapshotID)+dataSuffix)
}

// MetadataKey returns the object key of a snapshot's metadata object.
func MetadataKey(collectionID model.CollectionID, snapshotID model.SnapshotID) string {
	return path.Join("snapshots", string(collectionID), string(snapshotID)+metadataSuffix)
}

// CollectionPrefix returns the key prefix holding all snapshots of a
// collection.
func CollectionPrefix(collectionID model.CollectionID) string {
	return path.Join("snapshots", string(collectionID)) + "/"
}

// Snapshotter creates, restores and prunes snapshots in an object store.
type Snapshotter struct {
	store       objectstore.ObjectStore
	compression Compression
	logger      *slog.Logger
}

// Option defines a configuration option for the Snapshotter.
type Option func(*Snapshotter)

// WithCompression sets the codec for new snapshots. Existing snapshots
// decode with whatever codec their header names.
func WithCompression(c Compression) Option {
	return func(s *Snapshotter) {
		s.compression = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Snapshotter) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Snapshotter on top of the given object store.
// The default codec is zstd.
func New(store objectstore.ObjectStore, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		store:       store,
		compression: CompressionZstd,
		logger:      noopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// Create encodes docs and uploads a new snapshot: the data object first,
// then the metadata object. Metadata presence is the commit signal, so a
// failure between the two uploads leaves no restorable snapshot; the
// orphaned data object is removed best-effort.
func (s *Snapshotter) Create(ctx context.Context, collectionID model.CollectionID, docs []model.VectorDocument) (model.SnapshotMetadata, error) {
	if collectionID == "" {
		return model.SnapshotMetadata{}, fmt.Errorf("%w: empty collection id", ErrValidation)
	}

	data, err := Encode(docs, s.compression)
	if err != nil {
		return model.SnapshotMetadata{}, err
	}

	meta := model.SnapshotMetadata{
		SnapshotID:   model.SnapshotID(uuid.NewString()),
		CollectionID: collectionID,
		VectorCount:  len(docs),
		Dimension:    len(docs[0].Vector),
		CreatedAt:    time.Now().UTC(),
		SizeBytes:    int64(len(data)),
		Compression:  s.compression.String(),
		Format:       FormatName,
	}

	dataKey := DataKey(collectionID, meta.SnapshotID)
	if err := s.store.Put(ctx, dataKey, data); err != nil {
		return model.SnapshotMetadata{}, fmt.Errorf("snapshot: upload data: %w", err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return model.SnapshotMetadata{}, fmt.Errorf("snapshot: marshal metadata: %w", err)
	}

	if err := s.store.Put(ctx, MetadataKey(collectionID, meta.SnapshotID), metaBytes); err != nil {
		// The commit never happened; don't leave the data object behind.
		if delErr := s.store.Delete(context.Background(), dataKey); delErr != nil && !errors.Is(delErr, objectstore.ErrNotFound) {
			s.logger.Warn("orphaned snapshot data cleanup failed",
				"collection", collectionID,
				"snapshot", meta.SnapshotID,
				"error", delErr,
			)
		}
		return model.SnapshotMetadata{}, fmt.Errorf("snapshot: upload metadata: %w", err)
	}

	s.logger.Debug("snapshot created",
		"collection", collectionID,
		"snapshot", meta.SnapshotID,
		"count", meta.VectorCount,
		"bytes", meta.SizeBytes,
		"compression", meta.Compression,
	)

	return meta, nil
}

// Restore loads and decodes a snapshot. An uncommitted or deleted snapshot
// reports objectstore.ErrNotFound via its missing metadata object.
func (s *Snapshotter) Restore(ctx context.Context, collectionID model.CollectionID, snapshotID model.SnapshotID) ([]model.VectorDocument, error) {
	metaBytes, err := s.store.Get(ctx, MetadataKey(collectionID, snapshotID))
	if err != nil {
		return nil, fmt.Errorf("snapshot: load metadata: %w", err)
	}

	var meta model.SnapshotMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorrupted, err)
	}

	data, err := s.store.Get(ctx, DataKey(collectionID, snapshotID))
	if err != nil {
		return nil, fmt.Errorf("snapshot: load data: %w", err)
	}

	docs, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if len(docs) != meta.VectorCount {
		return nil, &CountMismatchError{Expected: meta.VectorCount, Actual: len(docs)}
	}

	return docs, nil
}

// List returns the committed snapshots of a collection, newest first.
func (s *Snapshotter) List(ctx context.Context, collectionID model.CollectionID) ([]model.SnapshotMetadata, error) {
	keys, err := s.store.List(ctx, CollectionPrefix(collectionID))
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}

	var metaKeys []string
	for _, k := range keys {
		if strings.HasSuffix(k, metadataSuffix) {
			metaKeys = append(metaKeys, k)
		}
	}

	metas := make([]model.SnapshotMetadata, len(metaKeys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, key := range metaKeys {
		g.Go(func() error {
			raw, err := s.store.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("snapshot: load metadata %s: %w", key, err)
			}
			if err := json.Unmarshal(raw, &metas[i]); err != nil {
				return fmt.Errorf("%w: metadata %s: %v", ErrCorrupted, key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	return metas, nil
}

// Delete removes a snapshot. Absent objects are ignored so cleanup of
// partial failures is idempotent. Metadata goes first: once it is gone the
// snapshot is no longer restorable even if the data delete fails.
func (s *Snapshotter) Delete(ctx context.Context, collectionID model.CollectionID, snapshotID model.SnapshotID) error {
	if err := s.store.Delete(ctx, MetadataKey(collectionID, snapshotID)); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		return fmt.Errorf("snapshot: delete metadata: %w", err)
	}
	if err := s.store.Delete(ctx, DataKey(collectionID, snapshotID)); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		return fmt.Errorf("snapshot: delete data: %w", err)
	}
	return nil
}

// CleanupOld deletes snapshots of the collection older than retention. The
// most recent snapshot is always kept, no matter its age: it may be the
// only copy of a collection whose memory and warm tiers are long gone.
// Per-snapshot failures are logged and skipped. Returns the number of
// snapshots fully deleted.
func (s *Snapshotter) CleanupOld(ctx context.Context, collectionID model.CollectionID, retention time.Duration) (int, error) {
	metas, err := s.List(ctx, collectionID)
	if err != nil {
		return 0, err
	}

	if len(metas) < 2 {
		return 0, nil
	}

	cutoff := time.Now().Add(-retention)
	deleted := 0

	// List is newest first; index 0 is the retained survivor
	for _, meta := range metas[1:] {
		if !meta.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.Delete(ctx, collectionID, meta.SnapshotID); err != nil {
			s.logger.Warn("snapshot cleanup failed",
				"collection", collectionID,
				"snapshot", meta.SnapshotID,
				"error", err,
			)
			continue
		}
		deleted++
	}

	return deleted, nil
}

// CleanupOrphans deletes data objects that have no metadata object, left
// behind when a crash or failed cleanup interrupted Create. Returns the
// number of orphans removed.
func (s *Snapshotter) CleanupOrphans(ctx context.Context, collectionID model.CollectionID) (int, error) {
	keys, err := s.store.List(ctx, CollectionPrefix(collectionID))
	if err != nil {
		return 0, fmt.Errorf("snapshot: list: %w", err)
	}

	committed := make(map[string]bool)
	for _, k := range keys {
		if strings.HasSuffix(k, metadataSuffix) {
			committed[strings.TrimSuffix(k, metadataSuffix)] = true
		}
	}

	removed := 0
	for _, k := range keys {
		if !strings.HasSuffix(k, dataSuffix) || committed[strings.TrimSuffix(k, dataSuffix)] {
			continue
		}
		if err := s.store.Delete(ctx, k); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
			s.logger.Warn("orphan cleanup failed", "key", k, "error", err)
			continue
		}
		removed++
	}

	return removed, nil
}

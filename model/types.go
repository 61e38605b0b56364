package model

import (
	"fmt"
	"time"
)

// CollectionID is the stable identifier of a vector-document collection.
// It partitions the object-store key namespace, so it must be non-empty
// and free of path separators beyond what the caller controls.
type CollectionID string

// SnapshotID is the unique identifier of a cold-tier snapshot.
// Immutable once created.
type SnapshotID string

// DocumentID is the stable primary key of a single document within a
// collection.
type DocumentID uint64

// Tier identifies one of the three storage tiers.
type Tier uint8

const (
	// TierHot is in-memory resident data, lowest access latency.
	TierHot Tier = iota
	// TierWarm is data persisted to local fast storage, evicted from memory.
	TierWarm
	// TierCold is data persisted as a compressed snapshot in durable
	// object storage.
	TierCold
)

// String returns the canonical lowercase name of the tier.
func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// ParseTier converts a canonical tier name back into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "hot":
		return TierHot, nil
	case "warm":
		return TierWarm, nil
	case "cold":
		return TierCold, nil
	default:
		return TierHot, fmt.Errorf("model: unknown tier %q", s)
	}
}

// VectorDocument is a single embedded document.
//
// ExternalID and Metadata are optional; the zero value ("" / nil) means
// absent. All documents within one snapshot share identical vector length.
type VectorDocument struct {
	ID         DocumentID
	ExternalID string
	Vector     []float32
	Metadata   map[string]any
	InsertedAt time.Time
}

// TierState is the authoritative placement record for one collection.
//
// Exactly one record exists per collection at any time. Tier placement is
// mutated only by the tiering manager; access counters are updated on the
// request path.
type TierState struct {
	CollectionID CollectionID

	// Tier is the current placement.
	Tier Tier

	// LastAccessedAt is the time of the most recent recorded access.
	LastAccessedAt time.Time

	// AccessCount is the number of accesses within the current tracking
	// window.
	AccessCount int64

	// AccessWindowStart marks the beginning of the current tracking window.
	AccessWindowStart time.Time

	// Pinned excludes the collection from automatic demotion.
	Pinned bool

	// SnapshotID references the cold-tier snapshot. Set iff Tier == TierCold.
	SnapshotID SnapshotID

	// WarmKey references the warm-tier object. Set iff Tier == TierWarm.
	WarmKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SnapshotMetadata is the commit record paired with a snapshot data object.
// Its presence in the object store marks the snapshot as complete and
// restorable.
type SnapshotMetadata struct {
	SnapshotID   SnapshotID   `json:"snapshot_id"`
	CollectionID CollectionID `json:"collection_id"`
	VectorCount  int          `json:"vector_count"`
	Dimension    int          `json:"dimension"`
	CreatedAt    time.Time    `json:"created_at"`
	SizeBytes    int64        `json:"size_bytes"`
	Compression  string       `json:"compression"`
	Format       string       `json:"format"`
}

// TierCounts holds per-tier collection counts.
type TierCounts struct {
	Hot  int `json:"hot"`
	Warm int `json:"warm"`
	Cold int `json:"cold"`
}

// Total returns the number of tracked collections.
func (c TierCounts) Total() int {
	return c.Hot + c.Warm + c.Cold
}

// Package model defines core types used throughout tiergo.
//
// # Identity Types
//
//   - CollectionID: Stable identifier of a vector-document collection (string)
//   - SnapshotID: Unique identifier of a cold-tier snapshot (UUID text)
//   - DocumentID: Stable primary key of a single document (uint64)
//
// # Data Types
//
//   - VectorDocument: A vector with optional external ID and metadata
//   - TierState: Authoritative placement record for one collection
//   - SnapshotMetadata: Commit record paired with a snapshot data object
//   - TierCounts: Per-tier collection counts for monitoring
package model

// Package tiering moves vector-document collections between three storage
// tiers: hot (resident in the application's memory), warm (serialized
// objects on fast storage), and cold (compressed snapshots in durable
// object storage).
//
// The Manager applies a Policy: idle collections cool down tier by tier,
// frequently accessed ones climb back up, and an optional memory budget
// evicts the least recently used hot collections. Transitions serialize
// per collection through a keyed try-lock, and placement state is written
// only after the data movement succeeded, so an interrupted transition
// leaves the previous tier intact.
package tiering

// Package tiergo provides tiered placement for vector document collections.
//
// Tiergo keeps the collections an application is actively searching in
// memory (hot), spills idle collections to compact serialized objects
// (warm), and archives long-idle collections as compressed columnar
// snapshots in object storage (cold). Access tracking feeds a policy that
// moves collections between tiers in the background; the application only
// reports accesses and reads placement state.
//
// # Quick Start
//
// In-memory tiers, local snapshots:
//
//	ctx := context.Background()
//	source := tiering.NewMemoryCollectionStore()
//	cold := objectstore.NewLocalStore("./snapshots")
//
//	tg, _ := tiergo.New(source, cold, tiergo.WithWarmDir("./warm"))
//	defer tg.Close()
//
//	tg.Start() // background policy worker
//
//	// On every read or write path:
//	tg.RecordAccess(ctx, "products")
//
// Cloud mode, placement survives restarts:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	cold := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "snapshots/")
//	states := tierstate.NewDynamoStore(dynamodb.NewFromConfig(cfg), "tier-states", time.Hour)
//
//	tg, _ := tiergo.New(source, cold, tiergo.WithStateStore(states))
//
// # Placement Model
//
// Collections move one tier at a time:
//
//	hot  -> warm   after HotTTL without access
//	warm -> cold   after WarmTTL without access
//	warm -> hot    after PromoteThreshold accesses inside AccessWindow
//	cold -> warm   after PromoteThreshold accesses inside AccessWindow
//
// A collection promoted out of cold climbs through warm and reaches hot
// on the next cycle if it stays busy. Demotions never lose data: the
// destination tier is written before the source copy is released, so a
// crash between the two leaves a redundant copy, never a missing one.
//
// Direct control is available where the application knows better than
// the policy:
//
//	tg.RequestPromotion(ctx, "products") // restore to memory now
//	tg.RequestDemotion(ctx, "archive")   // archive to cold now
//	tg.Pin(ctx, "checkout")              // exempt from demotion
//
// # Snapshots
//
// Cold collections live as compressed columnar snapshots (zstd by
// default; snappy, lz4, and uncompressed are available). Snapshots are
// content-addressed per collection and retained across promotion, so a
// promoted collection can be demoted again without a rewrite until its
// documents change. CleanupSnapshots removes aged snapshots but always
// keeps the newest one per collection.
//
// # Key Features
//
//   - Three-tier placement (memory / serialized objects / object storage)
//   - Pluggable stores (S3, MinIO, DynamoDB, local disk, in-memory)
//   - Columnar snapshot codec with zstd, snappy, and lz4 compression
//   - Pinning, manual promotion and demotion, per-tier metrics
//   - Memory budget enforcement with least-recently-used eviction
//   - Crash-safe transitions (data moves before state, cleanup after)
package tiergo

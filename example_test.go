package tiergo_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/tiergo"
	"github.com/hupe1980/tiergo/model"
	"github.com/hupe1980/tiergo/objectstore"
	"github.com/hupe1980/tiergo/snapshot"
	"github.com/hupe1980/tiergo/tiering"
)

// Example demonstrates the full demote/promote round trip on in-memory tiers.
func Example() {
	ctx := context.Background()

	source := tiering.NewMemoryCollectionStore()
	err := source.Load(ctx, "products", []model.VectorDocument{
		{ID: 1, ExternalID: "sku-1", Vector: []float32{0.1, 0.2, 0.3}},
		{ID: 2, ExternalID: "sku-2", Vector: []float32{0.4, 0.5, 0.6}},
	})
	if err != nil {
		log.Fatal(err)
	}

	tg, err := tiergo.New(source, objectstore.NewMemoryStore())
	if err != nil {
		log.Fatal(err)
	}
	defer tg.Close()

	tg.RecordAccess(ctx, "products")

	// Archive to cold storage
	if err := tg.RequestDemotion(ctx, "products"); err != nil {
		log.Fatal(err)
	}

	st, err := tg.TierStatus(ctx, "products")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(st.Tier)

	// Restore to memory
	if err := tg.RequestPromotion(ctx, "products"); err != nil {
		log.Fatal(err)
	}

	st, err = tg.TierStatus(ctx, "products")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(st.Tier)

	// Output:
	// cold
	// hot
}

// Example_pinning demonstrates exempting a collection from demotion.
func Example_pinning() {
	ctx := context.Background()

	source := tiering.NewMemoryCollectionStore()
	source.Load(ctx, "checkout", []model.VectorDocument{
		{ID: 1, Vector: []float32{1, 2, 3}},
	})

	tg, _ := tiergo.New(source, objectstore.NewMemoryStore())
	defer tg.Close()

	tg.Pin(ctx, "checkout")

	err := tg.RequestDemotion(ctx, "checkout")
	if errors.Is(err, tiergo.ErrPinned) {
		fmt.Println("demotion refused: pinned")
	}

	// Output: demotion refused: pinned
}

// Example_snapshots demonstrates listing the snapshots behind the cold tier.
func Example_snapshots() {
	ctx := context.Background()

	source := tiering.NewMemoryCollectionStore()
	source.Load(ctx, "archive", []model.VectorDocument{
		{ID: 1, Vector: []float32{1, 2, 3}},
		{ID: 2, Vector: []float32{4, 5, 6}},
	})

	tg, _ := tiergo.New(source, objectstore.NewMemoryStore(),
		tiergo.WithCompression(snapshot.CompressionLZ4),
	)
	defer tg.Close()

	tg.RecordAccess(ctx, "archive")

	if err := tg.RequestDemotion(ctx, "archive"); err != nil {
		log.Fatal(err)
	}

	metas, err := tg.Snapshots(ctx, "archive")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%d snapshot(s), %d vectors, %s compressed\n",
		len(metas), metas[0].VectorCount, metas[0].Compression)
	// Output: 1 snapshot(s), 2 vectors, lz4 compressed
}

// Example_metrics demonstrates plugging in the in-memory metrics collector.
func Example_metrics() {
	ctx := context.Background()

	source := tiering.NewMemoryCollectionStore()
	source.Load(ctx, "tracked", []model.VectorDocument{
		{ID: 1, Vector: []float32{1, 2, 3}},
	})

	collector := &tiergo.BasicMetricsCollector{}

	tg, _ := tiergo.New(source, objectstore.NewMemoryStore(),
		tiergo.WithMetricsCollector(collector),
	)
	defer tg.Close()

	tg.RecordAccess(ctx, "tracked")
	tg.RequestDemotion(ctx, "tracked")
	tg.RequestPromotion(ctx, "tracked")

	stats := collector.GetStats()
	fmt.Printf("accesses=%d transitions=%d demotions=%d promotions=%d\n",
		stats.AccessCount, stats.TransitionCount, stats.Demotions, stats.Promotions)
	// Output: accesses=1 transitions=4 demotions=2 promotions=2
}

// Example_localTiers demonstrates disk-backed warm and cold tiers.
func Example_localTiers() {
	dataPath := "./example_tiers"
	defer os.RemoveAll(dataPath) // Cleanup after example

	source := tiering.NewMemoryCollectionStore()
	cold := objectstore.NewLocalStore(filepath.Join(dataPath, "snapshots"))

	tg, err := tiergo.New(source, cold,
		tiergo.WithWarmDir(filepath.Join(dataPath, "warm")),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer tg.Close()

	fmt.Println("local tiers ready")
	// Output: local tiers ready
}

// Example_policy demonstrates tuning the placement policy.
func Example_policy() {
	policy := tiering.DefaultPolicy()
	policy.HotTTL = 2 * time.Hour
	policy.PromoteThreshold = 5
	policy.MemoryBudgetBytes = 512 << 20 // 512 MiB resident cap

	source := tiering.NewMemoryCollectionStore()

	tg, err := tiergo.New(source, objectstore.NewMemoryStore(),
		tiergo.WithPolicy(policy),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer tg.Close()

	fmt.Println("policy applied")
	// Output: policy applied
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"probgen"
)

func main() {
	var (
		tech          = flag.String("tech", "", "Single technology to seed (default: every leaf of the hierarchy)")
		root          = flag.String("root", "", "Restrict bulk seeding to one root category")
		count         = flag.Int("count", 0, "Minimum samples per tech (default: hierarchy sample_count)")
		dbPath        = flag.String("db", "./probgen.db", "SQLite database path")
		hierarchyFile = flag.String("hierarchy", "", "YAML hierarchy file (default: built-in)")
		apiKey        = flag.String("api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	)
	flag.Parse()

	if *apiKey == "" {
		*apiKey = os.Getenv("OPENAI_API_KEY")
		if *apiKey == "" {
			log.Fatal("OpenAI API key is required. Use -api-key flag or set OPENAI_API_KEY environment variable.")
		}
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	hierarchy := probgen.DefaultHierarchy()
	if *hierarchyFile != "" {
		raw, err := os.ReadFile(*hierarchyFile)
		if err != nil {
			log.Fatalf("Failed to read hierarchy file: %v", err)
		}
		hierarchy, err = probgen.ParseHierarchy(raw)
		if err != nil {
			log.Fatalf("Failed to parse hierarchy: %v", err)
		}
	}

	store, err := probgen.OpenSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	gateway := probgen.NewOpenAIGateway(*apiKey, logger)
	embedder := probgen.NewOpenAIEmbedder(*apiKey)
	costs := probgen.NewCostTracker(store, logger)
	seeder := probgen.NewSeeder(store, gateway, embedder, costs, logger)

	specs := buildSpecs(hierarchy, *tech, *root, *count)
	if len(specs) == 0 {
		log.Fatal("Nothing to seed.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	reports := seeder.SeedBatch(ctx, specs)

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			fmt.Printf("✗ %-16s existing=%d error: %v\n", r.Tech, r.Existing, r.Err)
			continue
		}
		fmt.Printf("✓ %-16s existing=%d generated=%d saved=%d\n", r.Tech, r.Existing, r.Generated, r.Saved)
	}
	fmt.Printf("\nSeeded %d techs, %d failed\n", len(reports)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// buildSpecs expands the CLI selection into concrete seed specs. A single
// -tech wins over bulk mode; otherwise every leaf under -root (or the whole
// hierarchy) is seeded to its configured sample count.
func buildSpecs(h *probgen.Hierarchy, tech, root string, count int) []probgen.SeedSpec {
	if tech != "" {
		n := count
		if n == 0 {
			n = h.SampleCount(tech)
		}
		if n == 0 {
			n = 5
		}
		parent, _ := h.Parent(tech)
		return []probgen.SeedSpec{{Tech: tech, Domain: parent, Count: n}}
	}

	var specs []probgen.SeedSpec
	for _, leaf := range h.Leaves(root) {
		n := count
		if n == 0 {
			n = h.SampleCount(leaf)
		}
		parent, _ := h.Parent(leaf)
		specs = append(specs, probgen.SeedSpec{Tech: leaf, Domain: parent, Count: n})
	}
	return specs
}

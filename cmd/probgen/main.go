package main

import (
	"context"
	"encoding/json"
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
		tech       = flag.String("tech", "", "Technology to generate problems for (required)")
		domain     = flag.String("domain", "", "Domain category (frontend, backend, database, cs, devops)")
		count      = flag.Int("count", 10, "Number of problems to generate")
		difficulty = flag.String("difficulty", "medium", "Difficulty level (easy, medium, hard)")
		mode       = flag.String("mode", "", "Generation mode (user_data, hybrid, ai_only); inferred when empty")
		sourceFile = flag.String("source-file", "", "Path to source material file")
		prompt     = flag.String("prompt", "", "Free-form topic guidance")
		blankRatio = flag.Float64("blank-ratio", 0, "Share of fill_blank problems (0..1)")
		validator  = flag.String("validator", "sampled", "Independent validator mode (off, sampled, full)")
		dbPath     = flag.String("db", "./probgen.db", "SQLite database path")
		redisAddr  = flag.String("redis", "", "Redis address for the problem cache (default: SQLite-backed cache)")
		runLogDir  = flag.String("runlog", "", "Directory for per-run transcripts (disabled when empty)")
		outputFile = flag.String("output", "", "Output file for result JSON (default: stdout)")
		apiKey     = flag.String("api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	)
	flag.Parse()

	if *tech == "" {
		log.Fatal("Tech is required. Use -tech flag.")
	}
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	store, err := probgen.OpenSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	var cacheStore probgen.CacheStore = store
	if *redisAddr != "" {
		redisCache, err := probgen.NewRedisCacheStore(ctx, *redisAddr, probgen.DefaultCacheTTL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisCache.Close()
		cacheStore = redisCache
	}

	source := ""
	if *sourceFile != "" {
		raw, err := os.ReadFile(*sourceFile)
		if err != nil {
			log.Fatalf("Failed to read source file: %v", err)
		}
		source = string(raw)
	}

	gateway := probgen.NewOpenAIGateway(*apiKey, logger)
	embedder := probgen.NewOpenAIEmbedder(*apiKey)
	retriever := probgen.NewRetriever(store, embedder, nil, logger)
	cache := probgen.NewProblemCache(cacheStore, probgen.DefaultCacheTTL, logger)
	costs := probgen.NewCostTracker(store, logger)
	filter := probgen.NewQualityFilterChain(gateway, costs, probgen.FilterConfig{
		ValidatorMode: probgen.ValidatorMode(*validator),
	}, logger)

	cfg := probgen.DefaultGeneratorConfig()
	cfg.RunLogDir = *runLogDir
	generator := probgen.NewProblemGenerator(gateway, retriever, cache, filter, costs, store, cfg, logger)

	result, err := generator.GenerateProblems(ctx, probgen.GenerationRequest{
		Tech:           *tech,
		Domain:         *domain,
		SourceMaterial: source,
		Prompt:         *prompt,
		ProblemCount:   *count,
		Difficulty:     *difficulty,
		Mode:           probgen.GenerationMode(*mode),
		BlankRatio:     *blankRatio,
		UserID:         "cli",
	})
	if err != nil {
		log.Fatalf("Failed to generate problems: %v", err)
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal result: %v", err)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			log.Fatalf("Failed to write output file: %v", err)
		}
		log.Printf("Result saved to: %s", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}

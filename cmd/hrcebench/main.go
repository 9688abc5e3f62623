// Package main provides a small manual harness that wires a fully
// in-memory Engine — hashEmbedder, memFullTextIndex, and an in-memory
// sqlitevecstore — and runs a handful of inserts and searches against it,
// printing timings and results. It is not a load generator or a test
// suite; it exists so the whole pipeline can be exercised end to end
// without standing up Postgres or Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/internal/ports/sqlitevecstore"
	"github.com/agentmem/hrce/internal/routing"
	"github.com/agentmem/hrce/internal/warmer"
	"github.com/agentmem/hrce/pkg/hrce"
)

func main() {
	items := flag.Int("items", 500, "number of synthetic memory items to insert")
	queries := flag.Int("queries", 20, "number of searches to run")
	dimension := flag.Uint("dim", 64, "embedding dimension for the hash embedder and vector store")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down hrcebench")
		cancel()
	}()

	dim := uint32(*dimension)

	vectorStore, err := sqlitevecstore.Open("", dim)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open in-memory vector store")
	}
	defer vectorStore.Close()

	fullText := newMemFullTextIndex()
	embedder := newHashEmbedder(dim)

	cfg := config.Default()

	warmed := warmer.Options{
		Strategy: config.WarmingEager,
		MaxItems: 10,
		Seed: []hrce.Query{
			{Text: "camera phone review", Limit: 10},
			{Text: "memory-0", Limit: 10},
		},
	}

	engine, err := hrce.NewEngine(cfg, hrce.Dependencies{
		VectorStore:   vectorStore,
		FullTextIndex: fullText,
		Embedder:      embedder,
	}, routing.NewLearner(0), warmed)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct engine")
	}

	go engine.RunBackground(ctx)

	seedItems := syntheticItems(*items)
	start := time.Now()
	if err := engine.Insert(ctx, seedItems); err != nil {
		log.Fatal().Err(err).Msg("seed insert failed")
	}
	log.Info().Int("items", len(seedItems)).Dur("elapsed", time.Since(start)).Msg("seeded memory items")

	runQueries(ctx, engine, *queries)

	stats := engine.Stats(ctx)
	fmt.Printf("cache hit rate: %.2f (hits=%d misses=%d)\n", stats.Cache.HitRate(), stats.Cache.Hits, stats.Cache.Misses)
	fmt.Printf("degradation events: %d\n", stats.DegradationEvents)
}

func runQueries(ctx context.Context, engine *hrce.Engine, n int) {
	texts := []string{
		"camera phone review",
		"best noise cancelling headphones",
		"memory-0",
		"what did the user say about battery life",
		"laptop for software development",
	}

	for i := 0; i < n; i++ {
		text := texts[i%len(texts)]
		start := time.Now()
		results, err := engine.Search(ctx, hrce.Query{Text: text, Limit: 10})
		elapsed := time.Since(start)
		if err != nil {
			log.Warn().Err(err).Str("query", text).Msg("search failed")
			continue
		}
		log.Info().Str("query", text).Int("results", len(results)).Dur("elapsed", elapsed).Msg("search complete")

		if len(results) > 0 {
			engine.RecordFeedback(hrce.Query{Text: text, Limit: 10}, hrce.SearchWeights{}, hrce.EstimateAccuracy(results), elapsed.Milliseconds())
		}
	}
}

func syntheticItems(n int) []hrce.MemoryItem {
	items := make([]hrce.MemoryItem, n)
	topics := []string{
		"camera phone review with great low light performance",
		"noise cancelling headphones comparison",
		"laptop benchmarks for software development workloads",
		"battery life complaints from the user during travel",
		"restaurant recommendation near the office",
	}
	now := referenceTime()
	for i := range items {
		items[i] = hrce.MemoryItem{
			ID:        fmt.Sprintf("memory-%d", i),
			Content:   fmt.Sprintf("memory-%d: %s", i, topics[i%len(topics)]),
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}
	}
	return items
}

// referenceTime anchors synthetic timestamps; the harness doesn't need a
// live clock since recency only matters relative to other seeded items.
func referenceTime() time.Time {
	return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
}

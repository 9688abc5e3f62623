// Package warmer pre-populates the query cache so cold starts and
// predictable traffic patterns don't pay a full pipeline cost on first
// request.
package warmer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

// Searcher is the subset of the engine the warmer needs: run a query and
// get back cacheable results. Declared here (not in internal/ports)
// because it's an internal collaborator contract, not an external one.
type Searcher interface {
	Search(ctx context.Context, query hrce.Query) ([]hrce.SearchResult, error)
}

// WarmSearcher is a Searcher that also exposes a grace-protected warming
// write path (spec.md §4.9: "Warming never evicts a recently accessed
// entry"). When the configured Searcher implements this, the Warmer calls
// WarmSearch instead of Search so its cache writes can't undo what live
// traffic just did; a plain Searcher falls back to Search, which has no
// such protection.
type WarmSearcher interface {
	Searcher
	WarmSearch(ctx context.Context, query hrce.Query) ([]hrce.SearchResult, error)
}

// QueryFrequency is one observed query and how often it has been seen,
// the input to Frequency-Based warming.
type QueryFrequency struct {
	Query hrce.Query
	Count int64
}

// ScheduleEntry pairs a query with the cron-like interval it should be
// refreshed on, for Scheduled warming.
type ScheduleEntry struct {
	Query    hrce.Query
	Interval time.Duration
}

// Warmer runs one of four strategies: Eager (a fixed seed list, run in
// full on every warming pass, the first of which runs at startup),
// Frequency-Based (the top-N most frequent recent queries),
// Scheduled (queries refreshed on their own interval), or Learning
// (queries the router's feedback stream flagged as high-value). Only one
// strategy is active per Warmer instance — pick one warming strategy per
// deployment.
type Warmer struct {
	strategy  config.WarmingStrategy
	maxItems  int
	batchSize int
	searcher  Searcher
	seed      []hrce.Query

	mu         sync.Mutex
	frequency  map[string]*QueryFrequency
	schedule   []ScheduleEntry
	lastRun    map[string]time.Time
	learningFn func() []hrce.Query
}

// Options configures a Warmer.
type Options struct {
	Strategy  config.WarmingStrategy
	MaxItems  int
	BatchSize int
	Searcher  Searcher
	// Seed is the fixed query list for Eager warming.
	Seed []hrce.Query
	// Schedule is the entry list for Scheduled warming.
	Schedule []ScheduleEntry
	// LearningFn supplies the current high-value query set for Learning
	// warming; called fresh on every warm cycle.
	LearningFn func() []hrce.Query
}

// New constructs a Warmer.
func New(opts Options) *Warmer {
	w := &Warmer{
		strategy:   opts.Strategy,
		maxItems:   opts.MaxItems,
		batchSize:  opts.BatchSize,
		searcher:   opts.Searcher,
		frequency:  make(map[string]*QueryFrequency),
		schedule:   opts.Schedule,
		lastRun:    make(map[string]time.Time),
		learningFn: opts.LearningFn,
		seed:       opts.Seed,
	}
	return w
}

// RecordQuery feeds an observed query into the Frequency-Based strategy's
// running counts. No-op under any other strategy.
func (w *Warmer) RecordQuery(q hrce.Query) {
	if w.strategy != config.WarmingFrequency {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	key := q.Text
	if existing, ok := w.frequency[key]; ok {
		existing.Count++
		return
	}
	w.frequency[key] = &QueryFrequency{Query: q, Count: 1}
}

// WarmOnce runs a single warming pass for the configured strategy,
// executing queries through the searcher so their results land in the
// query cache as a side effect. It tolerates individual query failures
// and keeps going, logging each at debug level.
func (w *Warmer) WarmOnce(ctx context.Context) {
	var queries []hrce.Query

	switch w.strategy {
	case config.WarmingEager:
		queries = w.seed

	case config.WarmingFrequency:
		queries = w.topFrequent()

	case config.WarmingScheduled:
		queries = w.due(time.Now())

	case config.WarmingLearning:
		if w.learningFn != nil {
			queries = w.learningFn()
		}
	}

	if w.maxItems > 0 && len(queries) > w.maxItems {
		queries = queries[:w.maxItems]
	}

	w.runBatches(ctx, queries)
}

func (w *Warmer) topFrequent() []hrce.Query {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := make([]*QueryFrequency, 0, len(w.frequency))
	for _, f := range w.frequency {
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Query.Text < entries[j].Query.Text
	})

	queries := make([]hrce.Query, len(entries))
	for i, e := range entries {
		queries[i] = e.Query
	}
	return queries
}

func (w *Warmer) due(now time.Time) []hrce.Query {
	w.mu.Lock()
	defer w.mu.Unlock()

	var due []hrce.Query
	for _, entry := range w.schedule {
		key := entry.Query.Text
		last, ok := w.lastRun[key]
		if !ok || now.Sub(last) >= entry.Interval {
			due = append(due, entry.Query)
			w.lastRun[key] = now
		}
	}
	return due
}

func (w *Warmer) runBatches(ctx context.Context, queries []hrce.Query) {
	if w.searcher == nil || len(queries) == 0 {
		return
	}
	batchSize := w.batchSize
	if batchSize <= 0 {
		batchSize = len(queries)
	}

	run := w.searcher.Search
	if warm, ok := w.searcher.(WarmSearcher); ok {
		run = warm.WarmSearch
	}

	for start := 0; start < len(queries); start += batchSize {
		end := start + batchSize
		if end > len(queries) {
			end = len(queries)
		}
		for _, q := range queries[start:end] {
			if _, err := run(ctx, q); err != nil {
				log.Debug().Err(err).Str("query", q.Text).Msg("cache warming query failed")
			}
		}
	}
}

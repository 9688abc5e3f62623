package hrce

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentmem/hrce/internal/batch"
	"github.com/agentmem/hrce/internal/classify"
	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/internal/fusion"
	"github.com/agentmem/hrce/internal/hrcerr"
	"github.com/agentmem/hrce/internal/indexstats"
	"github.com/agentmem/hrce/internal/monitor"
	"github.com/agentmem/hrce/internal/ports"
	"github.com/agentmem/hrce/internal/querycache"
	"github.com/agentmem/hrce/internal/rerank"
	"github.com/agentmem/hrce/internal/routing"
	"github.com/agentmem/hrce/internal/searchdrivers"
	"github.com/agentmem/hrce/internal/threshold"
	"github.com/agentmem/hrce/internal/warmer"
)

// Dependencies are the external collaborators the engine drives through
// the narrow ports in internal/ports. VectorStore and FullTextIndex may
// each be nil to run in a degraded, single-leg mode (if the remaining
// leg then fails, Search returns ErrSearchUnavailable);
// Embedder may be nil, in which case the vector leg is skipped entirely
// regardless of the router's chosen weights. L2Cache is optional: a nil
// backend degrades the two-level cache to L1-only transparently.
type Dependencies struct {
	VectorStore   ports.VectorStore
	FullTextIndex ports.FullTextIndex
	Embedder      ports.Embedder
	L2Cache       ports.DistributedCache
}

// Engine is HRCE's public surface: the six-stage retrieval pipeline
// (classify, route, search, fuse, threshold, rerank), fronted by the
// query-result cache and flanked by the index stats registry, cache
// warmer, and cache monitor. Construct one with NewEngine per process;
// it owns no goroutines until RunBackground is called.
type Engine struct {
	cfg *config.Config
	deps Dependencies

	classifier *classify.Classifier
	router     *routing.Router
	drivers    *searchdrivers.Drivers
	threshold  *threshold.Calculator
	reranker   *rerank.Reranker
	indexStats *indexstats.Registry
	queryCache *querycache.Cache
	monitor    *monitor.Monitor
	warmer     *warmer.Warmer

	rrfK          int
	driverTimeout time.Duration
	requestTimeout time.Duration
	batchOpts     batch.Options

	degradationEvents int64
}

// NewEngine wires every HRCE component from cfg and deps. learner may be
// nil to disable the router's online weight learning entirely. warmOpts
// may be zero-valued (Searcher left nil) to disable cache warming.
func NewEngine(cfg *config.Config, deps Dependencies, learner *routing.Learner, warmOpts warmer.Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	mon, err := monitor.New(monitor.Options{
		SlowQueryThreshold: time.Duration(cfg.MonitorSlowQueryThresholdMS) * time.Millisecond,
		MaxSlowQueries:     1000,
		HitRateAlertFloor:  cfg.MonitorHitRateAlertFloor,
		MaxSnapshots:       cfg.MonitorMaxSnapshots,
	})
	if err != nil {
		return nil, hrcerr.Internal("monitor_init", err)
	}

	e := &Engine{
		cfg:        cfg,
		deps:       deps,
		classifier: classify.New(),
		router:     routing.New(cfg, learner),
		drivers:    &searchdrivers.Drivers{Vector: deps.VectorStore, Fulltext: deps.FullTextIndex},
		threshold:  threshold.New(cfg),
		reranker:   rerank.New(cfg),
		indexStats: indexstats.New(deps.VectorStore, indexstats.Thresholds{
			ExactMax: uint64(cfg.RouterExactThreshold),
			HNSWMax:  uint64(cfg.RouterHNSWThreshold),
		}),
		queryCache:     querycache.New(cfg, deps.L2Cache),
		monitor:        mon,
		rrfK:           int(cfg.SearchRRFConstant),
		driverTimeout:  time.Duration(cfg.DriverTimeoutSecs) * time.Second,
		requestTimeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
		batchOpts: batch.Options{
			MaxConcurrency: cfg.BatchMaxConcurrency,
		},
	}

	if warmOpts.Searcher != nil {
		warmOpts.Strategy = cfg.WarmingStrategy
		if warmOpts.MaxItems == 0 {
			warmOpts.MaxItems = cfg.WarmingMaxItems
		}
		if warmOpts.BatchSize == 0 {
			warmOpts.BatchSize = cfg.WarmingBatchSize
		}
		e.warmer = warmer.New(warmOpts)
	}

	return e, nil
}

// Search runs one query through the full pipeline, or returns a cached
// result if an equivalent query (same type tag, limit, threshold, and
// filters) was served recently. A cache hit bypasses routing, search,
// fusion, and reranking entirely.
//
// The cache key's query-type tag is derived by the same Classify call
// that produces QueryFeatures. Classification is pure and O(|text|), so
// there is no meaningful cost to running it unconditionally before the
// cache lookup — doing so once keeps CacheKey and QueryFeatures
// consistent instead of requiring a second, cheaper tagging pass.
func (e *Engine) Search(ctx context.Context, query Query) ([]SearchResult, error) {
	return e.search(ctx, query, false)
}

// WarmSearch runs a query through the same pipeline as Search, but its
// cache write is grace-protected against evicting an entry live traffic
// just accessed (querycache.Cache.SetWarm) — the Cache Warmer calls this
// instead of Search so a warming pass can never undo what live traffic
// just did. See spec.md §4.9.
func (e *Engine) WarmSearch(ctx context.Context, query Query) ([]SearchResult, error) {
	return e.search(ctx, query, true)
}

// search is Search's and WarmSearch's shared implementation: classify,
// probe the cache, and on a miss run the full pipeline, differing only in
// which of querycache.Cache's Set/SetWarm writes the result back.
//
// The cache key's query-type tag is derived by the same Classify call
// that produces QueryFeatures. Classification is pure and O(|text|), so
// there is no meaningful cost to running it unconditionally before the
// cache lookup — doing so once keeps CacheKey and QueryFeatures
// consistent instead of requiring a second, cheaper tagging pass.
func (e *Engine) search(ctx context.Context, query Query, warm bool) ([]SearchResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	q := query.Normalize()
	if strings.TrimSpace(q.Text) == "" {
		return nil, hrcerr.Invalid("query text must not be empty")
	}

	queryType, features := e.classifier.Classify(q.Text)
	key := NewCacheKey(string(queryType), q.Text, q.Limit, q.MinScore, q.Filters)

	if cached, ok, err := e.queryCache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("query cache read failed, falling through to live search")
	} else if ok {
		e.monitor.RecordQuery(ctx, q.Text, time.Since(start))
		return cached, nil
	}

	results, err := e.executeSearch(ctx, q, features)
	e.monitor.RecordQuery(ctx, q.Text, time.Since(start))
	if err != nil {
		return nil, err
	}

	if warm {
		e.queryCache.SetWarm(ctx, key, results)
	} else {
		e.queryCache.Set(ctx, key, results)
		if e.warmer != nil {
			e.warmer.RecordQuery(q)
		}
	}
	return results, nil
}

// executeSearch runs the classify→route→search→fuse→threshold→rerank
// stages in strict order; no stage overlaps the next within one request.
func (e *Engine) executeSearch(ctx context.Context, q Query, features QueryFeatures) ([]SearchResult, error) {
	stats := e.indexStats.Snapshot()
	decision := e.router.Route(features, stats, q.Limit)
	weights := decision.Weights
	if q.HasExplicitWeights() {
		weights = SearchWeights{
			VectorWeight:   *q.VectorWeight,
			FulltextWeight: *q.FulltextWeight,
			Confidence:     1,
		}.Normalize()
	}

	embedding, err := e.embedQuery(ctx, q, weights)
	if err != nil {
		return nil, err
	}

	driverCtx, cancel := context.WithTimeout(ctx, e.driverTimeout)
	defer cancel()
	filters := searchdrivers.ToSearchFilters(q.Filters)
	drivers := e.drivers
	if embedding == nil {
		// Nothing to rank by similarity: run the full-text leg alone.
		drivers = &searchdrivers.Drivers{Fulltext: e.deps.FullTextIndex}
	}
	vectorLeg, fulltextLeg := drivers.Run(driverCtx, embedding, q.Text, decision.CandidateLimit, filters)

	if ctx.Err() != nil {
		return nil, hrcerr.ErrCancelled
	}

	degraded := vectorLeg.Err != nil || fulltextLeg.Err != nil
	if degraded && len(vectorLeg.Records) == 0 && len(fulltextLeg.Records) == 0 {
		return nil, hrcerr.ErrSearchUnavailable
	}

	if degraded {
		atomic.AddInt64(&e.degradationEvents, 1)
		log.Warn().
			AnErr("vector_err", vectorLeg.Err).
			AnErr("fulltext_err", fulltextLeg.Err).
			Str("query", q.Text).
			Msg("one search leg failed; continuing with the surviving leg")
	}

	fused := fusion.Fuse(vectorLeg.Records, fulltextLeg.Records, weights, e.rrfK)
	hydrateContent(fused)

	adaptiveThreshold := e.threshold.Compute(features, len(fused), q.Limit, !q.Filters.IsEmpty())
	if q.MinScore != nil && *q.MinScore > adaptiveThreshold {
		adaptiveThreshold = *q.MinScore
	}
	survivors := filterByThreshold(fused, adaptiveThreshold)

	var final []SearchResult
	if decision.Rerank {
		final = e.reranker.Rerank(survivors, features, q.Filters, time.Now())
	} else {
		final = survivors
	}
	return topK(final, q.Limit), nil
}

// embedQuery computes the query embedding needed for the vector leg.
// Returns a nil embedding (executeSearch then skips the vector leg
// entirely) when the vector weight is effectively zero, no embedder or
// vector store is wired, or embedding fails and the full-text leg alone
// can still carry the request.
func (e *Engine) embedQuery(ctx context.Context, q Query, weights SearchWeights) ([]float32, error) {
	if weights.VectorWeight <= 0 || e.deps.Embedder == nil || e.deps.VectorStore == nil {
		return nil, nil
	}
	embedding, err := e.deps.Embedder.Embed(ctx, q.Text)
	if err != nil {
		if weights.FulltextWeight <= 0 {
			return nil, hrcerr.Internal("embed", err)
		}
		log.Warn().Err(err).Msg("embedder failed; degrading to full-text-only leg")
		return nil, nil
	}
	if dim := e.deps.Embedder.Dimension(); dim != 0 {
		if storeDim, derr := e.deps.VectorStore.Dimension(ctx); derr == nil && storeDim != 0 && storeDim != dim {
			return nil, hrcerr.ErrDimensionMismatch
		}
	}
	return embedding, nil
}

// SearchBatch runs queries through Search with bounded concurrency,
// preserving the i-th output's correspondence to the i-th input
// regardless of completion order.
func (e *Engine) SearchBatch(ctx context.Context, queries []Query) ([][]SearchResult, error) {
	results, _ := batch.Run(ctx, queries, e.batchOpts, func(ctx context.Context, q Query) ([]SearchResult, error) {
		return e.Search(ctx, q)
	})
	out := make([][]SearchResult, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out, nil
}

// Insert fans MemoryItems out to the vector and full-text stores: each
// item's embedding is computed if not already supplied, vectors are
// upserted in one batched call, and full-text indexing runs with bounded
// concurrency. Insert refreshes the index stats registry afterward so the
// next Search sees the new vector count.
func (e *Engine) Insert(ctx context.Context, items []MemoryItem) error {
	if len(items) == 0 {
		return nil
	}

	if e.deps.VectorStore != nil {
		records := make([]ports.VectorRecord, 0, len(items))
		for i := range items {
			emb := items[i].Embedding
			if emb == nil && e.deps.Embedder != nil {
				computed, err := e.deps.Embedder.Embed(ctx, items[i].Content)
				if err != nil {
					return hrcerr.Internal("embed_insert", err)
				}
				emb = computed
			}
			if emb == nil {
				continue
			}
			// Vector stores read the item's text from the "content" key.
			meta := make(map[string]any, len(items[i].Metadata)+1)
			for k, v := range items[i].Metadata {
				meta[k] = v
			}
			meta["content"] = items[i].Content
			records = append(records, ports.VectorRecord{ID: items[i].ID, Embedding: emb, Metadata: meta})
		}
		if len(records) > 0 {
			if _, err := e.deps.VectorStore.AddVectors(ctx, records); err != nil {
				return hrcerr.Internal("add_vectors", err)
			}
		}
	}

	if e.deps.FullTextIndex != nil {
		_, err := batch.Run(ctx, items, e.batchOpts, func(ctx context.Context, item MemoryItem) (struct{}, error) {
			return struct{}{}, e.deps.FullTextIndex.Index(ctx, item.ID, item.Content, item.Metadata)
		})
		if err != nil {
			return hrcerr.Internal("fulltext_index", err)
		}
	}

	if e.deps.VectorStore != nil {
		if err := e.indexStats.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("index stats refresh failed after insert")
		}
	}
	return nil
}

// Invalidate removes ids from the backing stores and, because the
// query-result cache has no reverse index from a memory id back to the
// cache keys whose results might mention it, conservatively clears the
// entire query cache rather than leaving stale hits behind. This trades
// some warm-cache throughput for correctness after a deletion; see
// DESIGN.md.
func (e *Engine) Invalidate(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if e.deps.VectorStore != nil {
		if err := e.deps.VectorStore.DeleteVectors(ctx, ids); err != nil {
			return hrcerr.Internal("delete_vectors", err)
		}
	}
	if e.deps.FullTextIndex != nil {
		for _, id := range ids {
			if err := e.deps.FullTextIndex.Delete(ctx, id); err != nil {
				return hrcerr.Internal("fulltext_delete", err)
			}
		}
	}
	e.queryCache.Clear(ctx)
	if e.deps.VectorStore != nil {
		if err := e.indexStats.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("index stats refresh failed after invalidate")
		}
	}
	return nil
}

// ClearCache empties the query-result cache without touching the
// backing stores.
func (e *Engine) ClearCache(ctx context.Context) {
	e.queryCache.Clear(ctx)
}

// Stats reports the engine's cache counters, the most recent performance
// snapshot, and the lifetime degradation-event count.
func (e *Engine) Stats(ctx context.Context) EngineStats {
	snap := e.monitor.Snapshot(e.queryCache.Stats(ctx), e.queryCache.L1Stats(), e.queryCache.L2Stats(ctx))
	return EngineStats{
		Cache:             e.queryCache.Stats(ctx),
		Monitor:           snap,
		DegradationEvents: atomic.LoadInt64(&e.degradationEvents),
	}
}

// RecordFeedback feeds one observed query outcome to the router's
// off-hot-path weight learner. The learner's ring buffer needs the
// weights that were actually used to serve the query to compute a
// centroid nudge, so this signature carries them explicitly rather than
// re-deriving them from query text alone — see DESIGN.md's Open Question
// notes.
func (e *Engine) RecordFeedback(query Query, weights SearchWeights, accuracy float64, latencyMS int64) {
	learner := e.router.Learner()
	if learner == nil {
		return
	}
	learner.RecordFeedback(ScenarioFeedback{
		QueryText:     query.Text,
		ChosenWeights: weights,
		Accuracy:      accuracy,
		LatencyMS:     latencyMS,
	})
}

// EstimateAccuracy is the accuracy figure to feed RecordFeedback when no
// external ground truth is available: the mean of the top-5 result
// scores, clamped to [0,1].
func EstimateAccuracy(results []SearchResult) float64 {
	n := len(results)
	if n == 0 {
		return 0
	}
	if n > 5 {
		n = 5
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += results[i].Score
	}
	return clampUnit(sum / float64(n))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RunBackground starts every periodic task the engine owns — the
// router's feedback coalescer, index stats poller, cache monitor
// snapshotter, and cache warmer — and blocks until ctx is canceled. Call
// it in its own goroutine once per process; all internal timers honor
// ctx cancellation, and none of them spawn a runtime of their own.
func (e *Engine) RunBackground(ctx context.Context) {
	if learner := e.router.Learner(); learner != nil {
		go learner.RunCoalesceLoop(ctx, 30*time.Second)
	}
	if e.deps.VectorStore != nil {
		go e.runIndexStatsLoop(ctx)
	}
	go e.monitor.RunSnapshotLoop(ctx, time.Duration(e.cfg.MonitorSnapshotIntervalSecs)*time.Second, func() (CacheStats, CacheStats, CacheStats) {
		return e.queryCache.Stats(ctx), e.queryCache.L1Stats(), e.queryCache.L2Stats(ctx)
	})
	if e.warmer != nil {
		go e.runWarmerLoop(ctx)
	}
	<-ctx.Done()
}

func (e *Engine) runIndexStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.indexStats.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("periodic index stats refresh failed")
			}
		}
	}
}

func (e *Engine) runWarmerLoop(ctx context.Context) {
	e.warmer.WarmOnce(ctx)
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.warmer.WarmOnce(ctx)
		}
	}
}

// hydrateContent fills Content from the "content" metadata key both search
// drivers pack in (pgstore and the in-process harness adapters alike),
// leaving the key in Metadata for callers that still want it there. Results
// with no such key keep an empty Content, which the reranker's quality
// signal treats as the lowest score rather than an error.
func hydrateContent(results []SearchResult) {
	for i := range results {
		if results[i].Content != "" || results[i].Metadata == nil {
			continue
		}
		if content, ok := results[i].Metadata["content"].(string); ok {
			results[i].Content = content
		}
	}
}

func filterByThreshold(results []SearchResult, min float64) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= min {
			out = append(out, r)
		}
	}
	return out
}

func topK(results []SearchResult, k int) []SearchResult {
	if k <= 0 || k >= len(results) {
		return results
	}
	return results[:k]
}

// Package rerank implements the post-fusion Result Reranker: a weighted
// multi-signal scorer, not a cross-encoder (see DESIGN.md for why no
// model-based reranker is wired here).
package rerank

import (
	"math"
	"sort"
	"time"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

// Reranker recomputes a final ranking over fusion's output using five
// weighted signals: similarity, metadata match, recency, importance, and
// content quality.
type Reranker struct {
	weightSimilarity float64
	weightMetadata   float64
	weightTime       float64
	weightImportance float64
	weightQuality    float64
	topN             int
}

// New builds a Reranker from configuration.
func New(cfg *config.Config) *Reranker {
	return &Reranker{
		weightSimilarity: cfg.RerankWeightSimilarity,
		weightMetadata:   cfg.RerankWeightMetadata,
		weightTime:       cfg.RerankWeightTime,
		weightImportance: cfg.RerankWeightImportance,
		weightQuality:    cfg.RerankWeightQuality,
		topN:             cfg.RerankTopN,
	}
}

// Rerank scores and resorts results. queryFilters is used for the
// metadata-match signal; now is injected so scoring is deterministic in
// tests. If the Router decided rerank should be skipped, callers should
// not invoke Rerank at all — passthrough is the caller's responsibility,
// not this package's, to keep this type a pure function of its inputs.
func (r *Reranker) Rerank(results []hrce.SearchResult, features hrce.QueryFeatures, filters *hrce.Filters, now time.Time) []hrce.SearchResult {
	if len(results) == 0 {
		return results
	}

	scored := make([]hrce.SearchResult, len(results))
	copy(scored, results)

	for i := range scored {
		signal := r.score(scored[i], features, filters, now)
		scored[i].Score = signal
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if r.topN > 0 && len(scored) > r.topN {
		scored = scored[:r.topN]
	}
	return scored
}

func (r *Reranker) score(result hrce.SearchResult, features hrce.QueryFeatures, filters *hrce.Filters, now time.Time) float64 {
	similarity := similaritySignal(result)
	metadata := metadataSignal(result, filters)
	recency := recencySignal(result, now)
	importance := importanceSignal(result)
	quality := qualitySignal(result)

	return r.weightSimilarity*similarity +
		r.weightMetadata*metadata +
		r.weightTime*recency +
		r.weightImportance*importance +
		r.weightQuality*quality
}

// similaritySignal prefers the vector cosine score when present (it's the
// closest proxy for semantic similarity); falls back to the fused score.
func similaritySignal(result hrce.SearchResult) float64 {
	if result.VectorScore != nil {
		return clamp01(*result.VectorScore)
	}
	return clamp01(result.Score)
}

// metadataSignal rewards results whose metadata matches the query's
// active filters (tags, user/org/agent scoping already applied upstream
// at the store layer, so here it's a soft relevance bump for tag overlap).
func metadataSignal(result hrce.SearchResult, filters *hrce.Filters) float64 {
	if filters == nil || len(filters.Tags) == 0 || result.Metadata == nil {
		return 0.5
	}
	rawTags, ok := result.Metadata["tags"]
	if !ok {
		return 0.3
	}
	tags, ok := rawTags.([]string)
	if !ok || len(tags) == 0 {
		return 0.3
	}
	want := make(map[string]bool, len(filters.Tags))
	for _, t := range filters.Tags {
		want[t] = true
	}
	matches := 0
	for _, t := range tags {
		if want[t] {
			matches++
		}
	}
	if matches == 0 {
		return 0.2
	}
	return clamp01(float64(matches) / float64(len(filters.Tags)))
}

// recencySignal applies exponential decay over days since creation
// (half-life tuned so results a month old are meaningfully discounted
// but not zeroed).
func recencySignal(result hrce.SearchResult, now time.Time) float64 {
	createdRaw, ok := result.Metadata["created_at"]
	if !ok {
		return 0.5
	}
	created, ok := createdRaw.(time.Time)
	if !ok {
		return 0.5
	}
	days := now.Sub(created).Hours() / 24
	if days < 0 {
		days = 0
	}
	return clamp01(math.Exp(-days / 30.0))
}

// importanceSignal reads a caller-supplied importance score out of
// metadata, defaulting to neutral when absent.
func importanceSignal(result hrce.SearchResult) float64 {
	raw, ok := result.Metadata["importance"]
	if !ok {
		return 0.5
	}
	v, ok := raw.(float64)
	if !ok {
		return 0.5
	}
	return clamp01(v)
}

// qualitySignal rewards substantive content without over-rewarding
// unbounded length: 0 below 20 chars, ramping to a plateau of 1 across
// 200..2000 chars, then decaying linearly beyond that by 0.1 per 1000
// chars, reaching 0 at 12000 chars and above.
func qualitySignal(result hrce.SearchResult) float64 {
	length := len(result.Content)
	switch {
	case length < 20:
		return 0
	case length < 200:
		return clamp01(float64(length-20) / float64(200-20))
	case length <= 2000:
		return 1
	default:
		return clamp01(1 - float64(length-2000)/10000.0)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

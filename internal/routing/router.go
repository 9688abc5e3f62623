// Package routing implements the Strategy Router (weight predictor):
// given QueryFeatures and IndexStatistics it chooses per-query search
// weights, a vector search strategy, a candidate fetch limit, and
// whether to rerank.
package routing

import (
	"math"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

// Decision is everything the Router produces for one query.
type Decision struct {
	Weights        hrce.SearchWeights
	Strategy       hrce.SearchStrategy
	CandidateLimit int
	Rerank         bool
}

// Router applies a fixed set of weight-adjustment rules and, off the hot
// path, folds in learned offsets from high-accuracy feedback.
type Router struct {
	cfg     *config.Config
	learner *Learner
}

// Learner exposes the Router's online-learning component so a caller can
// wire RecordFeedback into the engine's feedback path and drive Coalesce
// from its own timer goroutine; nil when learning is disabled.
func (r *Router) Learner() *Learner {
	return r.learner
}

// New constructs a Router. cfg supplies the exact/hnsw vector-count
// thresholds; learner may be nil to disable online learning entirely.
func New(cfg *config.Config, learner *Learner) *Router {
	return &Router{cfg: cfg, learner: learner}
}

// Route never fails: degenerate inputs (zero-valued QueryFeatures, as
// derived from empty text) yield default {0.5, 0.5} with confidence 0.5.
func (r *Router) Route(features hrce.QueryFeatures, stats hrce.IndexStatistics, limit int) Decision {
	weights := hrce.SearchWeights{VectorWeight: 0.5, FulltextWeight: 0.5, Confidence: 0.5}
	if features != (hrce.QueryFeatures{}) {
		weights = r.baseWeights(features)
		if r.learner != nil {
			weights = r.learner.adjust(features, weights)
		}
		weights = weights.Normalize()
	}

	strategy, rerank := r.selectStrategy(stats.TotalVectors, limit)
	candidateLimit := limit
	if rerank {
		candidateLimit = maxInt(limit*3, 30)
	}

	return Decision{
		Weights:        weights,
		Strategy:       strategy,
		CandidateLimit: candidateLimit,
		Rerank:         rerank,
	}
}

func (r *Router) baseWeights(f hrce.QueryFeatures) hrce.SearchWeights {
	vector, fulltext := 0.5, 0.5

	if f.HasExactTerms {
		fulltext += 0.3
	}
	if f.SemanticComplexity > 0.6 {
		vector += 0.3 * f.SemanticComplexity
	}
	if f.IsQuestion {
		vector += 0.1
	}
	if f.HasTemporalIndicator {
		// Balance toward 0.5/0.5; the temporal filter is applied elsewhere.
		vector = (vector + 0.5) / 2
		fulltext = (fulltext + 0.5) / 2
	}
	if f.QueryLength < 10 {
		fulltext += 0.1
	}

	confidence := 1 - math.Abs(vector-fulltext)*0.5
	return hrce.SearchWeights{VectorWeight: vector, FulltextWeight: fulltext, Confidence: confidence}
}

// selectStrategy picks a SearchStrategy by total_vectors and the
// rerank flag.
func (r *Router) selectStrategy(totalVectors uint64, limit int) (hrce.SearchStrategy, bool) {
	switch {
	case totalVectors < uint64(r.cfg.RouterExactThreshold):
		// Exact: rerank only when candidates > 1000. We don't yet know the
		// candidate count here (that's decided downstream from this
		// strategy), so we approximate using limit*3 the way the rest of
		// the pipeline would compute it when rerank is assumed on; if that
		// projection is <=1000 we disable rerank for Exact, matching the
		// spec's "rerank iff candidates > 1000" rule.
		projected := maxInt(limit*3, 30)
		rerank := projected > 1000
		return hrce.SearchStrategy{Kind: hrce.StrategyExact}, rerank

	case totalVectors < uint64(r.cfg.RouterHNSWThreshold):
		ef := maxInt(limit*4, 40)
		return hrce.SearchStrategy{Kind: hrce.StrategyHNSW, EfSearch: ef}, true

	default:
		ef := maxInt(limit*4, 40)
		nprobe := tunedNprobe(totalVectors)
		return hrce.SearchStrategy{Kind: hrce.StrategyHybrid, EfSearch: ef, IVFNprobe: nprobe}, true
	}
}

// tunedNprobe approximates an IVF nprobe tuned toward ~0.95 recall: more
// partitions probed as the collection grows, capped to avoid scanning the
// whole index.
func tunedNprobe(totalVectors uint64) int {
	n := int(math.Sqrt(float64(totalVectors)) / 4)
	if n < 8 {
		n = 8
	}
	if n > 256 {
		n = 256
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Package threshold computes the adaptive minimum-score cutoff applied
// after fusion.
package threshold

import (
	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

// Calculator derives an adaptive threshold from query features, the
// candidate count produced by fusion, and whether filters were applied.
// It never needs the Router's Decision: the candidate count is only known
// after fusion runs, so threshold computation is a distinct pipeline
// stage rather than part of routing.
type Calculator struct {
	baseline float64
	min      float64
	max      float64
}

// New constructs a Calculator from configuration.
func New(cfg *config.Config) *Calculator {
	return &Calculator{
		baseline: cfg.SearchDefaultThreshold,
		min:      cfg.SearchMinThreshold,
		max:      cfg.SearchMaxThreshold,
	}
}

// Compute returns the minimum fused score a result must clear to survive
// into reranking, by applying fixed deltas:
//   - low semantic complexity (<0.3) loosens the cutoff by 0.2
//   - high semantic complexity (>0.7) loosens it by 0.15 (rerank will refine)
//   - very few candidates (< limit/2) loosens it by 0.2, to avoid an empty result
//   - very many candidates (> limit*10) tightens it by 0.15
//   - exact terms present tighten it by 0.2 (the caller wants precision)
//   - active filters tighten it by 0.2 (the caller already narrowed recall
//     and wants the remaining candidates to be strong matches)
//
// limit is the query's requested result count, used for the
// candidate-count-relative rules; the result is always clamped to
// [min, max].
func (c *Calculator) Compute(features hrce.QueryFeatures, candidateCount, limit int, filtersApplied bool) float64 {
	t := c.baseline

	switch {
	case features.SemanticComplexity < 0.3:
		t -= 0.2
	case features.SemanticComplexity > 0.7:
		t -= 0.15
	}

	if limit > 0 {
		switch {
		case candidateCount < limit/2:
			t -= 0.2
		case candidateCount > limit*10:
			t += 0.15
		}
	}

	if features.HasExactTerms {
		t += 0.2
	}
	if filtersApplied {
		t += 0.2
	}

	return clamp(t, c.min, c.max)
}

func clamp(v, min, max float64) float64 {
	if max <= min {
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

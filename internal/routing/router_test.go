package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

func TestRoute_DegenerateInputYieldsBalancedDefault(t *testing.T) {
	r := New(config.Default(), nil)
	decision := r.Route(hrce.QueryFeatures{}, hrce.IndexStatistics{}, 20)
	assert.InDelta(t, 0.5, decision.Weights.VectorWeight, 0.15)
	assert.InDelta(t, 0.5, decision.Weights.FulltextWeight, 0.15)
}

func TestRoute_ExactTermsFavorFulltext(t *testing.T) {
	r := New(config.Default(), nil)
	decision := r.Route(hrce.QueryFeatures{HasExactTerms: true}, hrce.IndexStatistics{}, 20)
	assert.Greater(t, decision.Weights.FulltextWeight, decision.Weights.VectorWeight)
}

func TestRoute_HighComplexityFavorsVector(t *testing.T) {
	r := New(config.Default(), nil)
	decision := r.Route(hrce.QueryFeatures{SemanticComplexity: 0.9}, hrce.IndexStatistics{}, 20)
	assert.Greater(t, decision.Weights.VectorWeight, decision.Weights.FulltextWeight)
}

func TestRoute_WeightsAlwaysNormalized(t *testing.T) {
	r := New(config.Default(), nil)
	decision := r.Route(hrce.QueryFeatures{HasExactTerms: true, IsQuestion: true, SemanticComplexity: 0.95}, hrce.IndexStatistics{}, 20)
	sum := decision.Weights.VectorWeight + decision.Weights.FulltextWeight
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.GreaterOrEqual(t, decision.Weights.VectorWeight, 0.1)
	assert.LessOrEqual(t, decision.Weights.VectorWeight, 0.9)
}

func TestRoute_StrategyByVectorCount(t *testing.T) {
	r := New(config.Default(), nil)

	exact := r.Route(hrce.QueryFeatures{}, hrce.IndexStatistics{TotalVectors: 500}, 10)
	require.Equal(t, hrce.StrategyExact, exact.Strategy.Kind)

	hnsw := r.Route(hrce.QueryFeatures{}, hrce.IndexStatistics{TotalVectors: 50_000}, 10)
	require.Equal(t, hrce.StrategyHNSW, hnsw.Strategy.Kind)
	assert.True(t, hnsw.Rerank)

	hybrid := r.Route(hrce.QueryFeatures{}, hrce.IndexStatistics{TotalVectors: 500_000}, 10)
	require.Equal(t, hrce.StrategyHybrid, hybrid.Strategy.Kind)
	assert.Greater(t, hybrid.Strategy.IVFNprobe, 0)
}

func TestRoute_RerankExpandsCandidateLimit(t *testing.T) {
	r := New(config.Default(), nil)
	decision := r.Route(hrce.QueryFeatures{}, hrce.IndexStatistics{TotalVectors: 50_000}, 10)
	assert.Greater(t, decision.CandidateLimit, 10)
}

func TestLearner_IgnoresLowAccuracySamples(t *testing.T) {
	l := NewLearner(100)
	l.RecordFeedback(hrce.ScenarioFeedback{QueryText: "x", ChosenWeights: hrce.SearchWeights{VectorWeight: 0.9, FulltextWeight: 0.1}, Accuracy: 0.2})
	assert.Equal(t, 0, l.Len())
}

func TestLearner_RecordsHighAccuracySamples(t *testing.T) {
	l := NewLearner(100)
	l.RecordFeedback(hrce.ScenarioFeedback{QueryText: "short", ChosenWeights: hrce.SearchWeights{VectorWeight: 0.8, FulltextWeight: 0.2}, Accuracy: 0.9})
	assert.Equal(t, 1, l.Len())
}

func TestLearner_RingBufferDropsOldestOnOverflow(t *testing.T) {
	l := NewLearner(2)
	l.RecordFeedback(hrce.ScenarioFeedback{QueryText: "a", Accuracy: 0.9})
	l.RecordFeedback(hrce.ScenarioFeedback{QueryText: "b", Accuracy: 0.9})
	l.RecordFeedback(hrce.ScenarioFeedback{QueryText: "c", Accuracy: 0.9})
	assert.Equal(t, 2, l.Len())
}

func TestLearner_CoalesceNudgesOffsetsAndAdjustApplies(t *testing.T) {
	l := NewLearner(100)
	for i := 0; i < 20; i++ {
		l.RecordFeedback(hrce.ScenarioFeedback{
			QueryText:     "short q",
			ChosenWeights: hrce.SearchWeights{VectorWeight: 0.2, FulltextWeight: 0.8},
			Accuracy:      0.95,
		})
	}
	l.Coalesce()

	base := hrce.SearchWeights{VectorWeight: 0.5, FulltextWeight: 0.5}
	adjusted := l.adjust(hrce.QueryFeatures{QueryLength: 5}, base)
	assert.Less(t, adjusted.VectorWeight, base.VectorWeight)
	assert.Greater(t, adjusted.FulltextWeight, base.FulltextWeight)
}

func TestLearner_WiredIntoRouterAffectsDecision(t *testing.T) {
	l := NewLearner(100)
	for i := 0; i < 20; i++ {
		l.RecordFeedback(hrce.ScenarioFeedback{
			QueryText:     "q",
			ChosenWeights: hrce.SearchWeights{VectorWeight: 0.1, FulltextWeight: 0.9},
			Accuracy:      0.95,
		})
	}
	l.Coalesce()

	r := New(config.Default(), l)
	withLearner := r.Route(hrce.QueryFeatures{QueryLength: 3}, hrce.IndexStatistics{}, 10)

	rNoLearner := New(config.Default(), nil)
	withoutLearner := rNoLearner.Route(hrce.QueryFeatures{QueryLength: 3}, hrce.IndexStatistics{}, 10)

	assert.NotEqual(t, withLearner.Weights, withoutLearner.Weights)
}

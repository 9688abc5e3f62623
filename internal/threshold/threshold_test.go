package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

func TestCompute_BaselineOnNeutralInput(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.5}, 50, 100, false)
	assert.InDelta(t, 0.4, got, 1e-9)
}

func TestCompute_HighComplexityLoosens(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.9}, 50, 100, false)
	assert.Less(t, got, 0.4)
}

func TestCompute_LowComplexityLoosens(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.1}, 50, 100, false)
	assert.Less(t, got, 0.4)
}

func TestCompute_LowComplexityLoosensMoreThanHighComplexity(t *testing.T) {
	c := New(config.Default())
	low := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.1}, 50, 100, false)
	high := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.9}, 50, 100, false)
	assert.Less(t, low, high)
}

func TestCompute_FewCandidatesLoosens(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.5}, 2, 100, false)
	assert.Less(t, got, 0.4)
}

func TestCompute_ManyCandidatesTightens(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.5}, 5000, 100, false)
	assert.Greater(t, got, 0.4)
}

func TestCompute_ExactTermsTighten(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.5, HasExactTerms: true}, 50, 100, false)
	assert.Greater(t, got, 0.4)
}

func TestCompute_FiltersTighten(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.5}, 50, 100, true)
	assert.Greater(t, got, 0.4)
}

func TestCompute_ClampedToConfiguredRange(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 1.0, HasExactTerms: true}, 1, 100, true)
	assert.GreaterOrEqual(t, got, config.Default().SearchMinThreshold)
	assert.LessOrEqual(t, got, config.Default().SearchMaxThreshold)
}

func TestCompute_ZeroLimitSkipsCandidateCountRule(t *testing.T) {
	c := New(config.Default())
	got := c.Compute(hrce.QueryFeatures{SemanticComplexity: 0.5}, 3, 0, false)
	assert.InDelta(t, 0.4, got, 1e-9)
}

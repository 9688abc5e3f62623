package rerank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

func vecScore(v float64) *float64 { return &v }

func TestRerank_EmptyInputPassthrough(t *testing.T) {
	r := New(config.Default())
	got := r.Rerank(nil, hrce.QueryFeatures{}, nil, time.Now())
	assert.Empty(t, got)
}

func TestRerank_HigherSimilarityWinsWhenOtherSignalsEqual(t *testing.T) {
	r := New(config.Default())
	now := time.Now()
	results := []hrce.SearchResult{
		{ID: "low", VectorScore: vecScore(0.2), Content: "same length content"},
		{ID: "high", VectorScore: vecScore(0.9), Content: "same length content"},
	}
	got := r.Rerank(results, hrce.QueryFeatures{}, nil, now)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].ID)
}

func TestRerank_RecencyDecaysOlderResults(t *testing.T) {
	r := New(config.Default())
	now := time.Now()
	results := []hrce.SearchResult{
		{ID: "old", VectorScore: vecScore(0.5), Metadata: map[string]any{"created_at": now.AddDate(0, -6, 0)}},
		{ID: "new", VectorScore: vecScore(0.5), Metadata: map[string]any{"created_at": now}},
	}
	got := r.Rerank(results, hrce.QueryFeatures{}, nil, now)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
}

func TestRerank_TopNTruncates(t *testing.T) {
	cfg := config.Default()
	cfg.RerankTopN = 1
	r := New(cfg)
	results := []hrce.SearchResult{
		{ID: "a", VectorScore: vecScore(0.9)},
		{ID: "b", VectorScore: vecScore(0.1)},
	}
	got := r.Rerank(results, hrce.QueryFeatures{}, nil, time.Now())
	assert.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestRerank_DeterministicTieBreakByID(t *testing.T) {
	r := New(config.Default())
	results := []hrce.SearchResult{
		{ID: "z", VectorScore: vecScore(0.5)},
		{ID: "a", VectorScore: vecScore(0.5)},
	}
	got := r.Rerank(results, hrce.QueryFeatures{}, nil, time.Now())
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
}

func TestRerank_MetadataSignalRewardsTagOverlap(t *testing.T) {
	r := New(config.Default())
	filters := &hrce.Filters{Tags: []string{"go", "infra"}}
	results := []hrce.SearchResult{
		{ID: "matching", VectorScore: vecScore(0.5), Metadata: map[string]any{"tags": []string{"go", "infra"}}},
		{ID: "unrelated", VectorScore: vecScore(0.5), Metadata: map[string]any{"tags": []string{"cooking"}}},
	}
	got := r.Rerank(results, hrce.QueryFeatures{}, filters, time.Now())
	require.Len(t, got, 2)
	assert.Equal(t, "matching", got[0].ID)
}

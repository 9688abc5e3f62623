package querycache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/pkg/hrce"
)

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := New(config.Default(), nil)
	key := hrce.NewCacheKey(string(hrce.QueryTypeSemantic), "phones", 20, nil, nil)
	results := []hrce.SearchResult{{ID: "a", Score: 0.9}}

	c.Set(context.Background(), key, results)
	got, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, results, got)
}

func TestCache_ExactIDEmptyResultsNeverCached(t *testing.T) {
	c := New(config.Default(), nil)
	key := hrce.NewCacheKey(string(hrce.QueryTypeExactID), "P001", 20, nil, nil)

	c.Set(context.Background(), key, nil)
	_, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_InvalidateRemovesEntry(t *testing.T) {
	c := New(config.Default(), nil)
	key := hrce.NewCacheKey(string(hrce.QueryTypeSemantic), "phones", 20, nil, nil)
	c.Set(context.Background(), key, []hrce.SearchResult{{ID: "a"}})

	c.Invalidate(context.Background(), key)
	_, ok, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_DifferentParamsDifferentKeys(t *testing.T) {
	c := New(config.Default(), nil)
	keyA := hrce.NewCacheKey(string(hrce.QueryTypeSemantic), "phones", 20, nil, nil)
	keyB := hrce.NewCacheKey(string(hrce.QueryTypeSemantic), "phones", 50, nil, nil)
	assert.NotEqual(t, keyA, keyB)

	c.Set(context.Background(), keyA, []hrce.SearchResult{{ID: "a"}})
	_, ok, _ := c.Get(context.Background(), keyB)
	assert.False(t, ok)
}

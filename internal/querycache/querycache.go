// Package querycache specializes the two-level cache for search
// responses, keyed by the query's type tag and parameter hash.
package querycache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentmem/hrce/internal/cache"
	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/internal/ports"
	"github.com/agentmem/hrce/pkg/hrce"
)

// Cache caches []hrce.SearchResult by hrce.CacheKey.
type Cache struct {
	inner      *cache.TwoLevelCache[[]hrce.SearchResult]
	defaultTTL time.Duration
}

// New builds a query-result cache from configuration and an optional L2
// distributed backend (nil disables L2 entirely).
func New(cfg *config.Config, l2Backend ports.DistributedCache) *Cache {
	l1 := cache.NewL1[[]hrce.SearchResult](cache.L1Options[[]hrce.SearchResult]{
		MaxEntries:   cfg.L1MaxEntries,
		MaxSizeBytes: cfg.L1MaxSizeBytes,
		DefaultTTL:   time.Duration(cfg.QueryCacheDefaultTTLMS) * time.Millisecond,
		Policy:       cfg.CacheInvalidation,
		SizeOf:       estimateSize,
		GraceWindow:  time.Duration(cfg.WarmingGraceWindowMS) * time.Millisecond,
	})
	l2 := cache.NewL2[[]hrce.SearchResult](cache.L2Options[[]hrce.SearchResult]{
		Backend:    l2Backend,
		DefaultTTL: time.Duration(cfg.L2DefaultTTLMS) * time.Millisecond,
		Encode:     encodeResults,
		Decode:     decodeResults,
	})
	return &Cache{
		inner:      cache.NewTwoLevelCache(l1, l2),
		defaultTTL: time.Duration(cfg.QueryCacheDefaultTTLMS) * time.Millisecond,
	}
}

// Get looks up a previously cached result set for key.
func (c *Cache) Get(ctx context.Context, key hrce.CacheKey) ([]hrce.SearchResult, bool, error) {
	return c.inner.Get(ctx, key.String())
}

// Set caches results for key using the configured default TTL.
// Exact-ID lookups that returned zero results are never cached: an
// exact-ID miss usually means the record didn't exist yet at index time
// and retrying shortly after insert should find it.
func (c *Cache) Set(ctx context.Context, key hrce.CacheKey, results []hrce.SearchResult) {
	if key.QueryTypeTag == string(hrce.QueryTypeExactID) && len(results) == 0 {
		return
	}
	c.inner.Set(ctx, key.String(), results, c.defaultTTL)
}

// SetWarm caches results the same way Set does, except the write is
// grace-protected against evicting an entry live traffic just accessed —
// see cache.TwoLevelCache.SetWarm. Callers driving a cache-warming pass
// should use this instead of Set.
func (c *Cache) SetWarm(ctx context.Context, key hrce.CacheKey, results []hrce.SearchResult) {
	if key.QueryTypeTag == string(hrce.QueryTypeExactID) && len(results) == 0 {
		return
	}
	c.inner.SetWarm(ctx, key.String(), results, c.defaultTTL)
}

// Invalidate drops a single cached entry.
func (c *Cache) Invalidate(ctx context.Context, key hrce.CacheKey) {
	c.inner.Invalidate(ctx, key.String())
}

// Clear empties the entire query-result cache.
func (c *Cache) Clear(ctx context.Context) {
	c.inner.Clear(ctx)
}

// Stats reports combined L1+L2 counters.
func (c *Cache) Stats(ctx context.Context) hrce.CacheStats {
	return c.inner.Stats(ctx)
}

// L1Stats reports the L1 tier's counters in isolation.
func (c *Cache) L1Stats() hrce.CacheStats {
	return c.inner.L1Stats()
}

// L2Stats reports the L2 tier's counters in isolation.
func (c *Cache) L2Stats(ctx context.Context) hrce.CacheStats {
	return c.inner.L2Stats(ctx)
}

func encodeResults(results []hrce.SearchResult) ([]byte, error) {
	return json.Marshal(results)
}

func decodeResults(raw []byte) ([]hrce.SearchResult, error) {
	var results []hrce.SearchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// estimateSize is a rough per-entry byte estimate used only for the
// size-bound eviction check, not for billing or precise accounting.
func estimateSize(results []hrce.SearchResult) int {
	size := 0
	for _, r := range results {
		size += len(r.ID) + len(r.Content) + 64
	}
	return size
}

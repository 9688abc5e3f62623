package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/agentmem/hrce/pkg/hrce"
)

// TwoLevelCache composes an L1 in-process cache with an optional L2
// distributed cache, implementing read-through (check L1, then L2,
// promoting L2 hits back into L1) and write-through (write both levels)
// semantics. Concurrent misses for the same key are coalesced with
// singleflight so a cache stampede only triggers one underlying load.
type TwoLevelCache[V any] struct {
	l1 *L1[V]
	l2 *L2[V]
	sf singleflight.Group
}

// NewTwoLevelCache composes l1 and l2. l2 may have a nil backend; its
// methods degrade to no-ops in that case.
func NewTwoLevelCache[V any](l1 *L1[V], l2 *L2[V]) *TwoLevelCache[V] {
	return &TwoLevelCache[V]{l1: l1, l2: l2}
}

// Get checks L1, then L2 (promoting a hit back into L1), returning
// (value, found, error). A non-nil error only ever originates from L2;
// an L1 miss with an L2 error still reports found=false with the error
// surfaced so callers can log it — an L2 error degrades to a cache miss,
// it never fails the request.
func (c *TwoLevelCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	now := time.Now()
	if value, ok := c.l1.Get(key, now); ok {
		return value, true, nil
	}

	value, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	if !ok {
		var zero V
		return zero, false, nil
	}

	c.l1.Set(key, value, 0, now)
	return value, true, nil
}

// GetOrLoad reads through the cache and, on a full miss, calls load
// exactly once per key even under concurrent callers (singleflight),
// then writes the result through both levels.
func (c *TwoLevelCache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) (V, error)) (V, error) {
	if value, ok, err := c.Get(ctx, key); ok {
		return value, nil
	} else if err != nil {
		// L2 error already degraded to a miss above; fall through to load.
		_ = err
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, value, ttl)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Set writes value into L1 synchronously and write-throughs to L2 in a
// best-effort async goroutine: the response is never ordered against the
// L2 write (spec.md §5), and a failed L2 write is logged, never
// propagated to the caller (spec.md §4.7). The write-through uses its own
// background context rather than ctx, since ctx is typically the
// request's context and may already be canceled by the time this
// goroutine runs.
func (c *TwoLevelCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	c.l1.Set(key, value, ttl, time.Now())
	c.writeThroughL2(key, value, ttl)
}

// SetWarm is Set's cache-warming counterpart: the L1 write is
// grace-protected (see L1.SetWarm), so a warming pass can never evict an
// entry live traffic only just touched. The L2 write-through is
// identical to Set's.
func (c *TwoLevelCache[V]) SetWarm(ctx context.Context, key string, value V, ttl time.Duration) {
	c.l1.SetWarm(key, value, ttl, time.Now())
	c.writeThroughL2(key, value, ttl)
}

func (c *TwoLevelCache[V]) writeThroughL2(key string, value V, ttl time.Duration) {
	go func() {
		if err := c.l2.Set(context.Background(), key, value, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("L2 write-through failed")
		}
	}()
}

// Invalidate removes key from both levels.
func (c *TwoLevelCache[V]) Invalidate(ctx context.Context, key string) {
	c.l1.Delete(key)
	_ = c.l2.Delete(ctx, key)
}

// Clear empties both levels.
func (c *TwoLevelCache[V]) Clear(ctx context.Context) {
	c.l1.Clear()
	_ = c.l2.Clear(ctx)
}

// Stats merges L1 and L2 counters. L2's hit/miss counters are not
// separately tracked by the distributed backend (see L2.Stats), so the
// combined Gets/Hits/Misses reflect only L1 traffic plus L2 entry/size
// counts.
func (c *TwoLevelCache[V]) Stats(ctx context.Context) hrce.CacheStats {
	l1Stats := c.l1.Stats()
	l2Stats, _ := c.l2.Stats(ctx)
	return l1Stats.Merge(hrce.CacheStats{EntryCount: l2Stats.EntryCount, SizeBytes: l2Stats.SizeBytes})
}

// L1Stats reports L1's own counters in isolation, for callers (the Cache
// Monitor's PerformanceSnapshot) that need the per-tier breakdown rather
// than Stats' merged view.
func (c *TwoLevelCache[V]) L1Stats() hrce.CacheStats {
	return c.l1.Stats()
}

// L2Stats reports L2's own counters in isolation, the per-tier
// counterpart to L1Stats.
func (c *TwoLevelCache[V]) L2Stats(ctx context.Context) hrce.CacheStats {
	s, _ := c.l2.Stats(ctx)
	return s
}

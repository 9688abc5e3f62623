package cache

import (
	"context"
	"time"

	"github.com/agentmem/hrce/internal/hrcerr"
	"github.com/agentmem/hrce/internal/ports"
	"github.com/agentmem/hrce/pkg/hrce"
)

// L2 adapts a ports.DistributedCache to typed values via caller-supplied
// encode/decode functions, so the distributed backend only ever sees
// bytes. A nil backend makes every L2 operation a clean miss, matching
// the disabled-by-default L2 configuration.
type L2[V any] struct {
	backend    ports.DistributedCache
	defaultTTL time.Duration
	encode     func(V) ([]byte, error)
	decode     func([]byte) (V, error)
}

// L2Options configures an L2 adapter.
type L2Options[V any] struct {
	Backend    ports.DistributedCache
	DefaultTTL time.Duration
	Encode     func(V) ([]byte, error)
	Decode     func([]byte) (V, error)
}

// NewL2 constructs an L2 adapter. Backend may be nil.
func NewL2[V any](opts L2Options[V]) *L2[V] {
	return &L2[V]{
		backend:    opts.Backend,
		defaultTTL: opts.DefaultTTL,
		encode:     opts.Encode,
		decode:     opts.Decode,
	}
}

// Enabled reports whether a backend is wired.
func (c *L2[V]) Enabled() bool {
	return c.backend != nil
}

// Get fetches and decodes key from the distributed backend.
func (c *L2[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if c.backend == nil {
		return zero, false, nil
	}
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		return zero, false, hrcerr.NewCacheTransient("l2.get", err)
	}
	if !ok {
		return zero, false, nil
	}
	value, err := c.decode(raw)
	if err != nil {
		return zero, false, hrcerr.NewCacheTransient("l2.decode", err)
	}
	return value, true, nil
}

// Set encodes and writes value to the distributed backend using ttl, or
// the adapter's default TTL when ttl is zero.
func (c *L2[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if c.backend == nil {
		return nil
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	raw, err := c.encode(value)
	if err != nil {
		return hrcerr.NewCacheTransient("l2.encode", err)
	}
	if err := c.backend.Set(ctx, key, raw, ttl.Milliseconds()); err != nil {
		return hrcerr.NewCacheTransient("l2.set", err)
	}
	return nil
}

// Delete removes key from the distributed backend.
func (c *L2[V]) Delete(ctx context.Context, key string) error {
	if c.backend == nil {
		return nil
	}
	if err := c.backend.Delete(ctx, key); err != nil {
		return hrcerr.NewCacheTransient("l2.delete", err)
	}
	return nil
}

// Clear empties the distributed backend.
func (c *L2[V]) Clear(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	if err := c.backend.Clear(ctx); err != nil {
		return hrcerr.NewCacheTransient("l2.clear", err)
	}
	return nil
}

// Stats reports the distributed backend's own counters, translated into
// the shared hrce.CacheStats shape (entry/size only; hit/miss counters
// live at the TwoLevelCache layer, which is the only place both levels
// are visible at once).
func (c *L2[V]) Stats(ctx context.Context) (hrce.CacheStats, error) {
	if c.backend == nil {
		return hrce.CacheStats{}, nil
	}
	s, err := c.backend.Stats(ctx)
	if err != nil {
		return hrce.CacheStats{}, hrcerr.NewCacheTransient("l2.stats", err)
	}
	return hrce.CacheStats{EntryCount: s.EntryCount, SizeBytes: s.SizeBytes}, nil
}

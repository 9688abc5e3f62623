package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/hrce/internal/config"
	"github.com/agentmem/hrce/internal/ports"
)

func TestL1_SetGetRoundTrip(t *testing.T) {
	l1 := NewL1[string](L1Options[string]{MaxEntries: 10, Policy: config.EvictionLRU})
	now := time.Now()
	l1.Set("k", "v", time.Minute, now)
	got, ok := l1.Get("k", now)
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestL1_ExpiredEntryIsMiss(t *testing.T) {
	l1 := NewL1[string](L1Options[string]{MaxEntries: 10, Policy: config.EvictionLRU})
	now := time.Now()
	l1.Set("k", "v", time.Millisecond, now)
	_, ok := l1.Get("k", now.Add(time.Second))
	assert.False(t, ok)
}

func TestL1_FIFOEvictsOldestInsertOrder(t *testing.T) {
	l1 := NewL1[int](L1Options[int]{MaxEntries: 2, Policy: config.EvictionFIFO})
	now := time.Now()
	l1.Set("a", 1, 0, now)
	l1.Set("b", 2, 0, now)
	l1.Set("c", 3, 0, now) // evicts "a"
	_, ok := l1.Get("a", now)
	assert.False(t, ok)
	_, ok = l1.Get("b", now)
	assert.True(t, ok)
}

func TestL1_LRUEvictsLeastRecentlyUsed(t *testing.T) {
	l1 := NewL1[int](L1Options[int]{MaxEntries: 2, Policy: config.EvictionLRU})
	now := time.Now()
	l1.Set("a", 1, 0, now)
	l1.Set("b", 2, 0, now)
	l1.Get("a", now) // touch a, making b the LRU victim
	l1.Set("c", 3, 0, now)
	_, ok := l1.Get("b", now)
	assert.False(t, ok)
	_, ok = l1.Get("a", now)
	assert.True(t, ok)
}

func TestL1_LFUEvictsLeastFrequentlyUsed(t *testing.T) {
	l1 := NewL1[int](L1Options[int]{MaxEntries: 2, Policy: config.EvictionLFU})
	now := time.Now()
	l1.Set("a", 1, 0, now)
	l1.Set("b", 2, 0, now)
	l1.Get("a", now)
	l1.Get("a", now)
	l1.Set("c", 3, 0, now) // "b" has fewer accesses, evicted
	_, ok := l1.Get("b", now)
	assert.False(t, ok)
}

func TestL1_LFUTiesBrokenByLastAccessed(t *testing.T) {
	l1 := NewL1[int](L1Options[int]{MaxEntries: 2, Policy: config.EvictionLFU})
	now := time.Now()
	l1.Set("a", 1, 0, now) // list front
	l1.Set("b", 2, 0, now) // list back

	// Bring both to the same access count (2), but give "b" the older
	// LastAccessed even though it sits at the back of the insertion-order
	// list. A tie-break that just fell back to list order (the bug) would
	// evict "a"; consulting LastAccessed must evict "b" instead.
	l1.Get("a", now.Add(10*time.Second))
	l1.Get("b", now.Add(time.Second))

	l1.Set("c", 3, 0, now.Add(20*time.Second))
	_, ok := l1.Get("b", now.Add(20*time.Second))
	assert.False(t, ok, "\"b\" has the older LastAccessed on an access-count tie and should be evicted")
	_, ok = l1.Get("a", now.Add(20*time.Second))
	assert.True(t, ok)
}

func TestL1_SetWarmSkipsRecentlyAccessedVictim(t *testing.T) {
	l1 := NewL1[int](L1Options[int]{MaxEntries: 2, Policy: config.EvictionLRU, GraceWindow: time.Minute})
	now := time.Now()
	l1.Set("a", 1, 0, now)
	l1.Set("b", 2, 0, now)
	l1.Get("a", now) // "a" touched, "b" would be the LRU victim

	// A plain Set would evict "b" (no grace protection); SetWarm must not.
	l1.SetWarm("c", 3, 0, now.Add(time.Second))
	_, ok := l1.Get("b", now.Add(time.Second))
	assert.True(t, ok, "warm write should not evict \"b\": both entries are inside the grace window")
	stats := l1.Stats()
	assert.Equal(t, int64(3), stats.EntryCount, "over capacity briefly rather than evicting a protected entry")
}

func TestL1_SetWarmEvictsOutsideGraceWindow(t *testing.T) {
	l1 := NewL1[int](L1Options[int]{MaxEntries: 2, Policy: config.EvictionLRU, GraceWindow: 10 * time.Millisecond})
	now := time.Now()
	l1.Set("a", 1, 0, now)
	l1.Set("b", 2, 0, now)

	later := now.Add(time.Second) // well outside the 10ms grace window
	l1.SetWarm("c", 3, 0, later)
	_, ok := l1.Get("a", later)
	assert.False(t, ok, "entries outside the grace window remain eligible for warm eviction")
}

func TestL1_HybridEvictsExpiredFirst(t *testing.T) {
	l1 := NewL1[int](L1Options[int]{MaxEntries: 5, Policy: config.EvictionHybrid})
	now := time.Now()
	l1.Set("expired", 1, time.Millisecond, now)
	l1.Set("fresh", 2, time.Hour, now)
	l1.Set("trigger", 3, time.Hour, now.Add(time.Second))
	_, ok := l1.Get("expired", now.Add(time.Second))
	assert.False(t, ok)
}

func TestL1_SizeBoundEviction(t *testing.T) {
	l1 := NewL1[string](L1Options[string]{
		MaxSizeBytes: 10,
		Policy:       config.EvictionFIFO,
		SizeOf:       func(v string) int { return len(v) },
	})
	now := time.Now()
	l1.Set("a", "12345", 0, now)
	l1.Set("b", "12345", 0, now)
	l1.Set("c", "12345", 0, now)
	stats := l1.Stats()
	assert.LessOrEqual(t, stats.SizeBytes, int64(10))
}

func TestL1_Stats_HitRate(t *testing.T) {
	l1 := NewL1[string](L1Options[string]{MaxEntries: 10, Policy: config.EvictionLRU})
	now := time.Now()
	l1.Set("k", "v", 0, now)
	l1.Get("k", now)
	l1.Get("missing", now)
	stats := l1.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

type fakeDistributedCache struct {
	store map[string][]byte
	fail  bool
}

func newFakeDistributedCache() *fakeDistributedCache {
	return &fakeDistributedCache{store: make(map[string][]byte)}
}

func (f *fakeDistributedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.fail {
		return nil, false, errors.New("boom")
	}
	v, ok := f.store[key]
	return v, ok, nil
}
func (f *fakeDistributedCache) Set(ctx context.Context, key string, value []byte, ttlMS int64) error {
	if f.fail {
		return errors.New("boom")
	}
	f.store[key] = value
	return nil
}
func (f *fakeDistributedCache) Delete(ctx context.Context, key string) error {
	delete(f.store, key)
	return nil
}
func (f *fakeDistributedCache) Clear(ctx context.Context) error {
	f.store = make(map[string][]byte)
	return nil
}
func (f *fakeDistributedCache) Stats(ctx context.Context) (ports.DistributedCacheStats, error) {
	return ports.DistributedCacheStats{EntryCount: int64(len(f.store))}, nil
}

func stringCodec() (func(string) ([]byte, error), func([]byte) (string, error)) {
	return func(s string) ([]byte, error) { return []byte(s), nil },
		func(b []byte) (string, error) { return string(b), nil }
}

func TestTwoLevelCache_L2HitPromotesToL1(t *testing.T) {
	backend := newFakeDistributedCache()
	encode, decode := stringCodec()
	l1 := NewL1[string](L1Options[string]{MaxEntries: 10, Policy: config.EvictionLRU})
	l2 := NewL2[string](L2Options[string]{Backend: backend, DefaultTTL: time.Minute, Encode: encode, Decode: decode})
	two := NewTwoLevelCache(l1, l2)

	backend.store["k"] = []byte("from-l2")

	value, ok, err := two.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-l2", value)

	// now present in L1 without touching L2
	backend.fail = true
	value, ok, err = two.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-l2", value)
}

func TestTwoLevelCache_GetOrLoadCallsLoadOnceOnMiss(t *testing.T) {
	l1 := NewL1[string](L1Options[string]{MaxEntries: 10, Policy: config.EvictionLRU})
	l2 := NewL2[string](L2Options[string]{})
	two := NewTwoLevelCache(l1, l2)

	calls := 0
	loader := func(ctx context.Context) (string, error) {
		calls++
		return "loaded", nil
	}

	v1, err := two.GetOrLoad(context.Background(), "k", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v1)

	v2, err := two.GetOrLoad(context.Background(), "k", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v2)
	assert.Equal(t, 1, calls)
}

func TestTwoLevelCache_InvalidateRemovesFromBothLevels(t *testing.T) {
	backend := newFakeDistributedCache()
	encode, decode := stringCodec()
	l1 := NewL1[string](L1Options[string]{MaxEntries: 10, Policy: config.EvictionLRU})
	l2 := NewL2[string](L2Options[string]{Backend: backend, DefaultTTL: time.Minute, Encode: encode, Decode: decode})
	two := NewTwoLevelCache(l1, l2)

	two.Set(context.Background(), "k", "v", time.Minute)
	time.Sleep(20 * time.Millisecond) // let the async L2 write-through land before invalidating
	two.Invalidate(context.Background(), "k")

	_, ok, _ := two.Get(context.Background(), "k")
	assert.False(t, ok)
}

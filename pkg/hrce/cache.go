package hrce

import (
	"hash/fnv"
	"strconv"
	"time"
)

// CacheKey identifies a cached query-result payload. Equality is structural;
// the text component is lowercased before hashing so "Foo" and "foo" collide
// on purpose, but the key itself is case-preserving (ParamsHash is derived,
// not stored verbatim text).
type CacheKey struct {
	QueryTypeTag string
	ParamsHash   uint64
}

// NewCacheKey hashes (text, limit, threshold, filters) with FNV-64a.
func NewCacheKey(queryTypeTag, text string, limit int, threshold *float64, filters *Filters) CacheKey {
	h := fnv.New64a()
	lowered := toLowerASCII(text)
	h.Write([]byte(lowered))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(limit)))
	h.Write([]byte{'|'})
	if threshold != nil {
		h.Write([]byte(strconv.FormatFloat(*threshold, 'f', -1, 64)))
	}
	h.Write([]byte{'|'})
	if filters != nil {
		h.Write([]byte(filters.stableKey()))
	}
	return CacheKey{QueryTypeTag: queryTypeTag, ParamsHash: h.Sum64()}
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// String renders the key as a compact map key / log field.
func (k CacheKey) String() string {
	return k.QueryTypeTag + ":" + strconv.FormatUint(k.ParamsHash, 36)
}

// CacheLevel tags which tier an entry currently lives in.
type CacheLevel string

const (
	CacheLevelL1 CacheLevel = "l1"
	CacheLevelL2 CacheLevel = "l2"
)

// CacheEntry wraps a cached value with the bookkeeping needed by the
// eviction policies: creation/access timestamps, access count, TTL, and a
// size estimate for byte-bounded caches. Entries never resurrect after
// removal — once deleted, a new Set creates a fresh entry.
type CacheEntry[V any] struct {
	Value        V
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
	TTL          time.Duration
	Level        CacheLevel
	SizeBytes    int
}

// NewCacheEntry constructs an entry with AccessCount 1 (the write counts as
// the first touch).
func NewCacheEntry[V any](value V, ttl time.Duration, level CacheLevel, sizeBytes int) CacheEntry[V] {
	now := time.Now()
	return CacheEntry[V]{
		Value:        value,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
		TTL:          ttl,
		Level:        level,
		SizeBytes:    sizeBytes,
	}
}

// IsExpired holds iff now >= CreatedAt + TTL. A zero TTL means "never expires".
func (e *CacheEntry[V]) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return !now.Before(e.CreatedAt.Add(e.TTL))
}

// RecordAccess monotonically increases AccessCount and bumps LastAccessed.
func (e *CacheEntry[V]) RecordAccess(now time.Time) {
	e.AccessCount++
	e.LastAccessed = now
}

// CacheStats are cumulative, field-wise-mergeable counters for one cache
// tier (or a merged multi-tier view).
type CacheStats struct {
	Gets          int64
	Hits          int64
	Misses        int64
	Sets          int64
	Evictions     int64
	Invalidations int64
	SizeBytes     int64
	EntryCount    int64
}

// HitRate returns Hits/Gets, or 0 when Gets == 0.
func (s CacheStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Gets)
}

// Merge returns the field-wise sum of s and other. SizeBytes/EntryCount are
// summed too, which is correct for combining disjoint tiers (L1 + L2); a
// caller combining stats for the *same* tier at two points in time should
// use the later snapshot directly instead.
func (s CacheStats) Merge(other CacheStats) CacheStats {
	return CacheStats{
		Gets:          s.Gets + other.Gets,
		Hits:          s.Hits + other.Hits,
		Misses:        s.Misses + other.Misses,
		Sets:          s.Sets + other.Sets,
		Evictions:     s.Evictions + other.Evictions,
		Invalidations: s.Invalidations + other.Invalidations,
		SizeBytes:     s.SizeBytes + other.SizeBytes,
		EntryCount:    s.EntryCount + other.EntryCount,
	}
}

// PerformanceSnapshot is emitted on demand and on a fixed interval by the
// Cache Monitor.
type PerformanceSnapshot struct {
	Timestamp       time.Time
	AvgResponseMS   float64
	P50ResponseMS   float64
	P95ResponseMS   float64
	P99ResponseMS   float64
	Combined        CacheStats
	L1              CacheStats
	L2              CacheStats
	SlowQueryCount  int
}

package routing

import (
	"context"
	"sync"
	"time"

	"github.com/agentmem/hrce/pkg/hrce"
)

const (
	// defaultRingCapacity bounds the feedback ring buffer (capacity ~10k).
	defaultRingCapacity = 10_000
	// minRetainedAccuracy: samples below this are dropped, never nudging
	// the rule table.
	minRetainedAccuracy = 0.7
)

// bucketKey groups feedback samples by the same coarse feature the base
// weight rules branch most often on (query length), so the learner nudges
// offsets for the bucket it actually has evidence for. Kept narrow rather
// than the full feature set to avoid sparse buckets starved of samples.
type bucketKey struct {
	shortQuery bool
}

// offset is a small nudge applied on top of the rule-based base weights.
type offset struct {
	vectorDelta   float64
	fulltextDelta float64
	samples       int
}

// Learner is a rule table with tunable offsets, not a trained model. It
// consumes ScenarioFeedback off the hot path: RecordFeedback only appends
// to a bounded ring buffer, dropping samples below minRetainedAccuracy;
// Coalesce (called by a timer, never per-request) drains the buffer and
// nudges per-bucket offsets toward the centroid of the chosen weights
// among the retained samples. LatencyMS is not consulted: a slow sample
// is retained like any other.
type Learner struct {
	mu       sync.Mutex
	capacity int
	buf      []hrce.ScenarioFeedback

	offsetsMu   sync.RWMutex
	liveOffsets map[bucketKey]offset
}

// NewLearner constructs a Learner with the given ring buffer capacity (0
// uses the default of ~10k).
func NewLearner(capacity int) *Learner {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Learner{
		capacity:    capacity,
		buf:         make([]hrce.ScenarioFeedback, 0, capacity),
		liveOffsets: make(map[bucketKey]offset),
	}
}

// RecordFeedback appends a sample to the ring buffer. This never runs
// inline with a request's response path; callers should invoke it from a
// goroutine or post-response hook. Overflow drops the oldest entry.
func (l *Learner) RecordFeedback(fb hrce.ScenarioFeedback) {
	if fb.Accuracy < minRetainedAccuracy {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) >= l.capacity {
		copy(l.buf, l.buf[1:])
		l.buf = l.buf[:len(l.buf)-1]
	}
	l.buf = append(l.buf, fb)
}

// Coalesce drains the ring buffer and recomputes per-bucket offsets as the
// mean deviation of chosen weights from the rule-based baseline for that
// bucket. Call this from a single background timer goroutine — never
// inline with a request.
func (l *Learner) Coalesce() {
	l.mu.Lock()
	samples := make([]hrce.ScenarioFeedback, len(l.buf))
	copy(samples, l.buf)
	l.buf = l.buf[:0]
	l.mu.Unlock()

	if len(samples) == 0 {
		return
	}

	type acc struct {
		sumVector, sumFulltext float64
		n                      int
	}
	buckets := make(map[bucketKey]*acc)
	// We don't have the original QueryFeatures stored per sample (only the
	// chosen weights), so approximate bucketing from the query text using
	// the same cheap heuristics the base rule table uses on length; this
	// keeps Coalesce decoupled from the classify package to avoid an
	// import cycle risk between routing and classify.
	for _, s := range samples {
		key := bucketKey{shortQuery: len(s.QueryText) < 10}
		a, ok := buckets[key]
		if !ok {
			a = &acc{}
			buckets[key] = a
		}
		a.sumVector += s.ChosenWeights.VectorWeight
		a.sumFulltext += s.ChosenWeights.FulltextWeight
		a.n++
	}

	newOffsets := make(map[bucketKey]offset, len(buckets))
	for key, a := range buckets {
		base := baselineForBucket(key)
		meanVector := a.sumVector / float64(a.n)
		meanFulltext := a.sumFulltext / float64(a.n)
		newOffsets[key] = offset{
			vectorDelta:   clampDelta(meanVector - base.VectorWeight),
			fulltextDelta: clampDelta(meanFulltext - base.FulltextWeight),
			samples:       a.n,
		}
	}

	l.offsetsMu.Lock()
	l.liveOffsets = newOffsets
	l.offsetsMu.Unlock()
}

// baselineForBucket reproduces the one base-weight rule that Coalesce's
// bucketing distinguishes (Router.baseWeights' QueryLength < 10 branch),
// so the learner nudges relative to the same rule table the router
// applies at request time.
func baselineForBucket(key bucketKey) hrce.SearchWeights {
	vector, fulltext := 0.5, 0.5
	if key.shortQuery {
		fulltext += 0.1
	}
	return hrce.SearchWeights{VectorWeight: vector, FulltextWeight: fulltext, Confidence: 0.5}
}

// clampDelta bounds a single nudge so the learner can never swing weights
// wildly from one coalesce cycle.
func clampDelta(d float64) float64 {
	const maxDelta = 0.15
	if d > maxDelta {
		return maxDelta
	}
	if d < -maxDelta {
		return -maxDelta
	}
	return d
}

// adjust nudges weights using the live offset table for the closest
// matching bucket (by shortQuery only, matching Coalesce's bucketing).
func (l *Learner) adjust(f hrce.QueryFeatures, weights hrce.SearchWeights) hrce.SearchWeights {
	key := bucketKey{shortQuery: f.QueryLength < 10}
	l.offsetsMu.RLock()
	off, ok := l.liveOffsets[key]
	l.offsetsMu.RUnlock()
	if !ok {
		return weights
	}
	weights.VectorWeight += off.vectorDelta
	weights.FulltextWeight += off.fulltextDelta
	return weights
}

// RunCoalesceLoop drives Coalesce on a fixed interval until ctx is
// canceled. The engine starts exactly one of these per Learner, so
// offset updates are always coalesced on a timer rather than per-request.
func (l *Learner) RunCoalesceLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Coalesce()
		}
	}
}

// Len reports the current ring buffer occupancy (for tests/monitoring).
func (l *Learner) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Package monitor tracks cache and query performance over time: a
// bounded ring of recent latencies for percentile computation, a capped
// slow-query log, and periodic PerformanceSnapshot emission, instrumented
// with go.opentelemetry.io/otel/metric alongside its own in-process
// percentile bookkeeping.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/agentmem/hrce/pkg/hrce"
)

const ringCapacity = 1024

// SlowQuery records one query whose latency crossed the configured
// threshold.
type SlowQuery struct {
	Query     string
	LatencyMS float64
	At        time.Time
}

// Monitor accumulates latency samples and cache statistics and derives
// PerformanceSnapshot on demand or on a timer.
type Monitor struct {
	mu             sync.Mutex
	ring           []float64
	ringPos        int
	ringFilled     bool
	slowThreshold  time.Duration
	slowQueries    []SlowQuery
	maxSlowQueries int
	hitRateFloor   float64
	maxSnapshots   int
	snapshots      []hrce.PerformanceSnapshot

	latencyHist metric.Float64Histogram
}

// Options configures a Monitor.
type Options struct {
	SlowQueryThreshold time.Duration
	MaxSlowQueries     int
	HitRateAlertFloor  float64
	MaxSnapshots       int
	Meter              metric.Meter // nil disables OTel instrumentation
}

// New constructs a Monitor. Meter may be nil in tests or deployments
// without an OTel pipeline configured.
func New(opts Options) (*Monitor, error) {
	m := &Monitor{
		ring:           make([]float64, ringCapacity),
		slowThreshold:  opts.SlowQueryThreshold,
		maxSlowQueries: opts.MaxSlowQueries,
		hitRateFloor:   opts.HitRateAlertFloor,
		maxSnapshots:   opts.MaxSnapshots,
	}
	if m.maxSlowQueries <= 0 {
		m.maxSlowQueries = 1000
	}

	if opts.Meter != nil {
		hist, err := opts.Meter.Float64Histogram(
			"hrce.query.latency_ms",
			metric.WithDescription("End-to-end search query latency in milliseconds"),
		)
		if err != nil {
			return nil, err
		}
		m.latencyHist = hist
	}

	return m, nil
}

// RecordQuery records one query's latency and appends it to the slow
// query log if it crosses the threshold.
func (m *Monitor) RecordQuery(ctx context.Context, query string, latency time.Duration) {
	latencyMS := float64(latency.Microseconds()) / 1000.0

	m.mu.Lock()
	m.ring[m.ringPos] = latencyMS
	m.ringPos = (m.ringPos + 1) % ringCapacity
	if m.ringPos == 0 {
		m.ringFilled = true
	}
	if m.slowThreshold > 0 && latency >= m.slowThreshold {
		m.slowQueries = append(m.slowQueries, SlowQuery{Query: query, LatencyMS: latencyMS, At: time.Now()})
		if len(m.slowQueries) > m.maxSlowQueries {
			m.slowQueries = m.slowQueries[len(m.slowQueries)-m.maxSlowQueries:]
		}
	}
	m.mu.Unlock()

	if m.latencyHist != nil {
		m.latencyHist.Record(ctx, latencyMS)
	}
}

// Snapshot computes a PerformanceSnapshot from the current ring buffer
// contents and the supplied cache statistics. Taking a snapshot does not
// reset any counters.
func (m *Monitor) Snapshot(combined, l1, l2 hrce.CacheStats) hrce.PerformanceSnapshot {
	m.mu.Lock()
	samples := m.currentSamplesLocked()
	slowCount := len(m.slowQueries)
	m.mu.Unlock()

	snap := hrce.PerformanceSnapshot{
		Timestamp:      time.Now(),
		Combined:       combined,
		L1:             l1,
		L2:             l2,
		SlowQueryCount: slowCount,
	}
	if len(samples) > 0 {
		sort.Float64s(samples)
		snap.AvgResponseMS = mean(samples)
		snap.P50ResponseMS = percentile(samples, 50)
		snap.P95ResponseMS = percentile(samples, 95)
		snap.P99ResponseMS = percentile(samples, 99)
	}

	m.mu.Lock()
	m.snapshots = append(m.snapshots, snap)
	if m.maxSnapshots > 0 && len(m.snapshots) > m.maxSnapshots {
		m.snapshots = m.snapshots[len(m.snapshots)-m.maxSnapshots:]
	}
	m.mu.Unlock()

	return snap
}

// RunSnapshotLoop periodically calls statsFn and records a snapshot until
// ctx is canceled.
func (m *Monitor) RunSnapshotLoop(ctx context.Context, interval time.Duration, statsFn func() (combined, l1, l2 hrce.CacheStats)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			combined, l1, l2 := statsFn()
			m.Snapshot(combined, l1, l2)
		}
	}
}

// SlowQueries returns a copy of the current slow-query log.
func (m *Monitor) SlowQueries() []SlowQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SlowQuery, len(m.slowQueries))
	copy(out, m.slowQueries)
	return out
}

// Recommendations inspects the most recent snapshots against the
// configured hit-rate floor and a p95 regression check, returning
// human-readable advisories. Empty when nothing looks wrong.
func (m *Monitor) Recommendations() []string {
	m.mu.Lock()
	snapshots := append([]hrce.PerformanceSnapshot(nil), m.snapshots...)
	m.mu.Unlock()

	if len(snapshots) == 0 {
		return nil
	}

	var recs []string
	latest := snapshots[len(snapshots)-1]
	if latest.Combined.Gets > 0 && latest.Combined.HitRate() < m.hitRateFloor {
		recs = append(recs, "cache hit rate below configured floor; consider a more aggressive warming strategy or a longer default TTL")
	}
	if len(snapshots) >= 2 {
		baseline := snapshots[0]
		if baseline.P95ResponseMS > 0 && latest.P95ResponseMS > baseline.P95ResponseMS*2 {
			recs = append(recs, "p95 latency has more than doubled since the first recorded snapshot; investigate slow queries")
		}
	}
	return recs
}

func (m *Monitor) currentSamplesLocked() []float64 {
	if m.ringFilled {
		out := make([]float64, ringCapacity)
		copy(out, m.ring)
		return out
	}
	out := make([]float64, m.ringPos)
	copy(out, m.ring[:m.ringPos])
	return out
}

func mean(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// percentile expects samples already sorted ascending.
func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	if len(samples) == 1 {
		return samples[0]
	}
	rank := (p / 100.0) * float64(len(samples)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(samples) {
		return samples[len(samples)-1]
	}
	frac := rank - float64(lower)
	return samples[lower] + frac*(samples[upper]-samples[lower])
}

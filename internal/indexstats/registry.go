// Package indexstats maintains the current vector count, dimension, and
// derived index type for the Strategy Router.
package indexstats

import (
	"context"
	"sync"

	"github.com/agentmem/hrce/internal/ports"
	"github.com/agentmem/hrce/pkg/hrce"
)

// Thresholds controls the vector-count boundaries used to derive
// IndexType. Defaults: <10k flat, 10k..100k hnsw, >=100k hybrid.
type Thresholds struct {
	ExactMax uint64 // below this: flat
	HNSWMax  uint64 // below this (and >= ExactMax): hnsw; at/above: hybrid
}

// DefaultThresholds returns the default boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{ExactMax: 10_000, HNSWMax: 100_000}
}

// Registry is process-wide, lazily initialized, and safe for concurrent
// readers with a single writer (refreshed on insert/delete bursts and by a
// periodic poll owned by the caller).
type Registry struct {
	mu         sync.RWMutex
	stats      hrce.IndexStatistics
	thresholds Thresholds
	store      ports.VectorStore
}

// New creates a Registry backed by store, using thresholds to derive
// IndexType. The registry starts at zero until the first Refresh.
func New(store ports.VectorStore, thresholds Thresholds) *Registry {
	return &Registry{
		store:      store,
		thresholds: thresholds,
		stats:      hrce.IndexStatistics{IndexType: hrce.IndexTypeFlat},
	}
}

// Snapshot returns a cheap copy-on-read view of the current statistics.
func (r *Registry) Snapshot() hrce.IndexStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Refresh polls the backing vector store for the current count and
// dimension and recomputes the derived index type. Safe to call
// concurrently with Snapshot; Refresh calls are serialized against each
// other by the caller (a single periodic poller) so there is never more
// than one writer at a time.
func (r *Registry) Refresh(ctx context.Context) error {
	count, err := r.store.Count(ctx)
	if err != nil {
		return err
	}
	dim, err := r.store.Dimension(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.stats = hrce.IndexStatistics{
		TotalVectors: count,
		Dimension:    dim,
		IndexType:    r.deriveIndexType(count),
	}
	r.mu.Unlock()
	return nil
}

// SetCount is a direct-write path for tests and for callers that already
// know the new count after a batch insert/delete, avoiding a round trip to
// the store.
func (r *Registry) SetCount(count uint64, dim uint32) {
	r.mu.Lock()
	r.stats = hrce.IndexStatistics{
		TotalVectors: count,
		Dimension:    dim,
		IndexType:    r.deriveIndexType(count),
	}
	r.mu.Unlock()
}

func (r *Registry) deriveIndexType(count uint64) hrce.IndexType {
	switch {
	case count < r.thresholds.ExactMax:
		return hrce.IndexTypeFlat
	case count < r.thresholds.HNSWMax:
		return hrce.IndexTypeHNSW
	default:
		return hrce.IndexTypeHybrid
	}
}

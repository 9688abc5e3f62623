// Package searchdrivers runs the vector and full-text legs of a hybrid
// search concurrently against a shared deadline, tolerating a partial
// failure in either leg rather than failing the whole query.
package searchdrivers

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmem/hrce/internal/hrcerr"
	"github.com/agentmem/hrce/internal/ports"
	"github.com/agentmem/hrce/pkg/hrce"
)

// LegResult carries one leg's (vector or fulltext) outcome: either a
// ranked candidate list, or an error if that leg failed. A canceled or
// timed-out leg reports zero results rather than propagating the
// context error upward — callers should check Err to decide whether to
// log a degraded-search warning.
type LegResult struct {
	Records []ports.ScoredRecord
	Total   int64
	Err     error
	Latency time.Duration
}

// Drivers wraps the two narrow store ports the pipeline fans out to.
type Drivers struct {
	Vector   ports.VectorStore
	Fulltext ports.FullTextIndex
}

// Run executes both legs concurrently against a shared deadline (if ctx
// already carries one) and returns once both have finished, been
// canceled, or panicked-and-recovered into an error. Either store may be
// nil, in which case that leg reports a clean empty result with no
// error — the caller decided at wiring time not to run that leg.
func (d *Drivers) Run(ctx context.Context, embedding []float32, text string, limit int, filters *ports.SearchFilters) (vector LegResult, fulltext LegResult) {
	done := make(chan struct{}, 2)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				vector = LegResult{Err: hrcerr.Internal("vector_search", fmt.Errorf("panic: %v", r))}
			}
			done <- struct{}{}
		}()
		vector = d.runVector(ctx, embedding, limit, filters)
	}()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				fulltext = LegResult{Err: hrcerr.Internal("fulltext_search", fmt.Errorf("panic: %v", r))}
			}
			done <- struct{}{}
		}()
		fulltext = d.runFulltext(ctx, text, limit, filters)
	}()

	<-done
	<-done
	return vector, fulltext
}

func (d *Drivers) runVector(ctx context.Context, embedding []float32, limit int, filters *ports.SearchFilters) LegResult {
	if d.Vector == nil {
		return LegResult{}
	}
	start := time.Now()
	records, total, err := d.Vector.Search(ctx, embedding, limit, filters)
	latency := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return LegResult{Latency: latency}
		}
		return LegResult{Err: hrcerr.Internal("vector_search", err), Latency: latency}
	}
	return LegResult{Records: records, Total: total, Latency: latency}
}

func (d *Drivers) runFulltext(ctx context.Context, text string, limit int, filters *ports.SearchFilters) LegResult {
	if d.Fulltext == nil {
		return LegResult{}
	}
	start := time.Now()
	records, total, err := d.Fulltext.Search(ctx, text, limit, filters)
	latency := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return LegResult{Latency: latency}
		}
		return LegResult{Err: hrcerr.Internal("fulltext_search", err), Latency: latency}
	}
	return LegResult{Records: records, Total: total, Latency: latency}
}

// ToSearchFilters narrows the public Filters type down to the port
// boundary's SearchFilters, converting *time.Time bounds to unix millis.
func ToSearchFilters(f *hrce.Filters) *ports.SearchFilters {
	if f == nil {
		return nil
	}
	out := &ports.SearchFilters{
		UserID:  f.UserID,
		OrgID:   f.OrgID,
		AgentID: f.AgentID,
		Tags:    f.Tags,
	}
	if f.TimeStart != nil {
		ms := f.TimeStart.UnixMilli()
		out.TimeStart = &ms
	}
	if f.TimeEnd != nil {
		ms := f.TimeEnd.UnixMilli()
		out.TimeEnd = &ms
	}
	return out
}

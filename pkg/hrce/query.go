// Package hrce contains the public data model for AgentMem's Hybrid
// Retrieval and Caching Engine: the immutable request/response types shared
// across the classifier, router, search drivers, fusion, reranker, and
// caches.
package hrce

import (
	"strings"
	"time"
)

// Filters scopes a Query to a subset of stored memory items.
type Filters struct {
	UserID    string     `json:"user_id,omitempty"`
	OrgID     string     `json:"org_id,omitempty"`
	AgentID   string     `json:"agent_id,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	TimeStart *time.Time `json:"time_start,omitempty"`
	TimeEnd   *time.Time `json:"time_end,omitempty"`
}

// IsEmpty reports whether no filter constraints are set.
func (f *Filters) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.UserID == "" && f.OrgID == "" && f.AgentID == "" &&
		len(f.Tags) == 0 && f.TimeStart == nil && f.TimeEnd == nil
}

// stableKey renders the filter set deterministically for cache-key hashing.
func (f *Filters) stableKey() string {
	if f.IsEmpty() {
		return ""
	}
	var b strings.Builder
	b.WriteString(f.UserID)
	b.WriteByte('|')
	b.WriteString(f.OrgID)
	b.WriteByte('|')
	b.WriteString(f.AgentID)
	b.WriteByte('|')
	tags := append([]string(nil), f.Tags...)
	sortStrings(tags)
	b.WriteString(strings.Join(tags, ","))
	b.WriteByte('|')
	if f.TimeStart != nil {
		b.WriteString(f.TimeStart.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	if f.TimeEnd != nil {
		b.WriteString(f.TimeEnd.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func sortStrings(s []string) {
	// Small slices only (tag sets); insertion sort avoids importing sort here
	// twice across the package for a handful of elements.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Query is an immutable per-request search record. Construct it once at
// request entry and never mutate it afterward.
type Query struct {
	Text            string   `json:"text"`
	Limit           int      `json:"limit"`
	MinScore        *float64 `json:"min_score,omitempty"`
	VectorWeight    *float64 `json:"vector_weight,omitempty"`
	FulltextWeight  *float64 `json:"fulltext_weight,omitempty"`
	Filters         *Filters `json:"filters,omitempty"`
}

// Normalize replaces a non-positive Limit with the default of 20 and caps
// Limit at 1000, returning the query unchanged otherwise; it never
// mutates weights (those are the Router's job).
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
	return q
}

// HasExplicitWeights reports whether the caller requested specific weights.
func (q Query) HasExplicitWeights() bool {
	return q.VectorWeight != nil && q.FulltextWeight != nil
}

// QueryType labels a query per the classifier's taxonomy.
type QueryType string

const (
	QueryTypeExactID         QueryType = "exact_id"
	QueryTypeTemporal        QueryType = "temporal"
	QueryTypeShortKeyword    QueryType = "short_keyword"
	QueryTypeNaturalLanguage QueryType = "natural_language"
	QueryTypeSemantic        QueryType = "semantic"
)

// QueryFeatures are derived once per non-cached query from its text.
type QueryFeatures struct {
	HasExactTerms        bool
	SemanticComplexity   float64
	HasTemporalIndicator bool
	EntityCount          int
	QueryLength          int
	IsQuestion           bool
}

// SearchWeights carries the Router's vector/fulltext split for one query.
type SearchWeights struct {
	VectorWeight   float64
	FulltextWeight float64
	Confidence     float64
}

// Normalize rescales VectorWeight+FulltextWeight to sum to 1.0 after
// clamping each to [0.1, 0.9]. It is idempotent.
func (w SearchWeights) Normalize() SearchWeights {
	clamp := func(v float64) float64 {
		if v < 0.1 {
			return 0.1
		}
		if v > 0.9 {
			return 0.9
		}
		return v
	}
	v := clamp(w.VectorWeight)
	f := clamp(w.FulltextWeight)
	sum := v + f
	if sum <= 0 {
		return SearchWeights{VectorWeight: 0.5, FulltextWeight: 0.5, Confidence: 0.5}
	}
	w.VectorWeight = v / sum
	w.FulltextWeight = f / sum
	return w
}

// StrategyKind tags the SearchStrategy variant.
type StrategyKind string

const (
	StrategyExact  StrategyKind = "exact"
	StrategyHNSW   StrategyKind = "hnsw"
	StrategyHybrid StrategyKind = "hybrid"
)

// SearchStrategy selects how the vector leg should be executed, chosen by
// the Router from the Index Stats Registry's current vector count.
type SearchStrategy struct {
	Kind      StrategyKind
	EfSearch  int // HNSW, Hybrid
	IVFNprobe int // Hybrid only
}

// SearchResult is one fused/reranked candidate.
type SearchResult struct {
	ID            string         `json:"id"`
	Content       string         `json:"content"`
	Score         float64        `json:"score"`
	VectorScore   *float64       `json:"vector_score,omitempty"`
	FulltextScore *float64       `json:"fulltext_score,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// IndexType is the derived index implementation for the current vector count.
type IndexType string

const (
	IndexTypeFlat   IndexType = "flat"
	IndexTypeHNSW   IndexType = "hnsw"
	IndexTypeHybrid IndexType = "hybrid"
)

// IndexStatistics is a copy-on-read snapshot of the vector index's shape.
type IndexStatistics struct {
	TotalVectors uint64
	Dimension    uint32
	IndexType    IndexType
}

// MemoryItem is the unit of ingestion: a durable memory extracted from
// conversational or unstructured content, fanned out to the vector and
// full-text stores on Insert.
type MemoryItem struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ScenarioFeedback is one observed query outcome, fed asynchronously to the
// Router's weight predictor.
type ScenarioFeedback struct {
	QueryText     string
	ChosenWeights SearchWeights
	Accuracy      float64
	LatencyMS     int64
}

// EngineStats is the public surface for `Engine.Stats()`.
type EngineStats struct {
	Cache             CacheStats
	Monitor           PerformanceSnapshot
	DegradationEvents int64
}

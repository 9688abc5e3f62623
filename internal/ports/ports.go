// Package ports declares the narrow external collaborator contracts HRCE
// consumes: the vector store, full-text index, embedder, and distributed
// (L2) cache. Implementations live in subpackages (pgstore, sqlitevecstore,
// l2redis) or are supplied by the caller; HRCE's own packages only ever
// depend on these interfaces, never on a concrete backend.
package ports

import "context"

// VectorRecord is one row accepted by VectorStore.AddVectors.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Metadata  map[string]any
}

// ScoredRecord is one hit returned by a search driver, before fusion.
type ScoredRecord struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// SearchFilters is the server-side-or-client-side filter set both drivers
// accept; it mirrors pkg/hrce.Filters but is declared independently so
// ports has no dependency on the public package (keeps the interface
// narrow and stable).
type SearchFilters struct {
	UserID    string
	OrgID     string
	AgentID   string
	Tags      []string
	TimeStart *int64 // unix millis
	TimeEnd   *int64
}

// VectorStore is the consumed Vector Store contract.
type VectorStore interface {
	AddVectors(ctx context.Context, records []VectorRecord) ([]string, error)
	Search(ctx context.Context, embedding []float32, limit int, filters *SearchFilters) ([]ScoredRecord, int64, error)
	DeleteVectors(ctx context.Context, ids []string) error
	GetVector(ctx context.Context, id string) (*VectorRecord, error)
	Count(ctx context.Context) (uint64, error)
	Dimension(ctx context.Context) (uint32, error)
}

// FullTextIndex is the consumed Full-Text Index contract.
type FullTextIndex interface {
	Index(ctx context.Context, docID, text string, metadata map[string]any) error
	Search(ctx context.Context, text string, limit int, filters *SearchFilters) ([]ScoredRecord, int64, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Embedder is the consumed embedding contract. HRCE never
// computes embeddings itself; it only calls through this interface.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() uint32
	HealthCheck(ctx context.Context) bool
}

// DistributedCache is the consumed L2 cache contract. Values
// are opaque serialized bytes; the typed façade lives in internal/cache.
type DistributedCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttlMS int64) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (DistributedCacheStats, error)
}

// DistributedCacheStats is whatever cheap counters the L2 backend tracks
// natively; HRCE's own CacheStats accounting is independent of this.
type DistributedCacheStats struct {
	EntryCount int64
	SizeBytes  int64
}

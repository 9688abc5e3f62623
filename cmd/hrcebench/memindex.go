package main

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/agentmem/hrce/internal/ports"
)

// memFullTextIndex is a trivial in-process ports.FullTextIndex: token
// overlap scoring over a map, no persistence, no query language. It exists
// only so this harness can run search end to end without a Postgres
// instance; real deployments use internal/ports/pgstore.
type memFullTextIndex struct {
	mu   sync.RWMutex
	docs map[string]memDoc
}

type memDoc struct {
	text     string
	tokens   map[string]struct{}
	metadata map[string]any
}

func newMemFullTextIndex() *memFullTextIndex {
	return &memFullTextIndex{docs: make(map[string]memDoc)}
}

func (m *memFullTextIndex) Index(ctx context.Context, docID, text string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docID] = memDoc{text: text, tokens: tokenize(text), metadata: metadata}
	return nil
}

func (m *memFullTextIndex) Search(ctx context.Context, text string, limit int, filters *ports.SearchFilters) ([]ports.ScoredRecord, int64, error) {
	want := tokenize(text)
	if len(want) == 0 {
		return nil, 0, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var scored []ports.ScoredRecord
	for id, doc := range m.docs {
		overlap := 0
		for t := range want {
			if _, ok := doc.tokens[t]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		score := float64(overlap) / float64(len(want))
		scored = append(scored, ports.ScoredRecord{
			ID:       id,
			Score:    score,
			Metadata: mergeContentMetadata(doc.text, doc.metadata),
		})
	}

	total := int64(len(scored))
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, total, nil
}

func (m *memFullTextIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memFullTextIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]memDoc)
	return nil
}

func mergeContentMetadata(content string, metadata map[string]any) map[string]any {
	merged := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["content"] = content
	return merged
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

// hashEmbedder is a deterministic, model-free ports.Embedder: every token
// hashes into a fixed-width bucket and the resulting vector is
// L2-normalized. It gives repeatable, non-degenerate cosine scores for
// the harness without requiring a real embedding provider.
type hashEmbedder struct {
	dim uint32
}

func newHashEmbedder(dim uint32) *hashEmbedder {
	return &hashEmbedder{dim: dim}
}

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for token := range tokenize(text) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(token))
		bucket := hasher.Sum32() % h.dim
		vec[bucket]++
	}
	normalize(vec)
	return vec, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *hashEmbedder) Dimension() uint32 { return h.dim }

func (h *hashEmbedder) HealthCheck(ctx context.Context) bool { return true }

func normalize(v []float32) {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
}

// Package fusion merges ranked vector and full-text candidate lists into
// a single ranked list via weighted Reciprocal Rank Fusion:
// score(id) = w_v/(k+rank_v) + w_f/(k+rank_f).
package fusion

import (
	"sort"

	"github.com/agentmem/hrce/internal/ports"
	"github.com/agentmem/hrce/pkg/hrce"
)

// DefaultK is RRF's rank-damping constant absent explicit configuration.
const DefaultK = 60

// Fuse combines vector and fulltext candidate lists using weighted RRF.
// Each input list need not be pre-sorted; Fuse derives rank from Score
// (descending, ties broken by ID ascending) before fusing. The output is
// sorted by fused score descending, ties broken by ID ascending — fusion
// is deterministic for identical inputs.
//
// If vector and fulltext carry the same IDs in the same order, the fused
// order equals that order; if weights.FulltextWeight is 0, the fused
// order equals the vector order.
func Fuse(vector, fulltext []ports.ScoredRecord, weights hrce.SearchWeights, k int) []hrce.SearchResult {
	if k <= 0 {
		k = DefaultK
	}
	vector = collapseBestPerID(vector)
	fulltext = collapseBestPerID(fulltext)

	vectorRanked := rankOf(vector)
	fulltextRanked := rankOf(fulltext)

	vectorByID := indexByID(vector)
	fulltextByID := indexByID(fulltext)

	ids := make(map[string]struct{}, len(vector)+len(fulltext))
	for _, rec := range vector {
		ids[rec.ID] = struct{}{}
	}
	for _, rec := range fulltext {
		ids[rec.ID] = struct{}{}
	}

	results := make([]hrce.SearchResult, 0, len(ids))
	for id := range ids {
		var score float64
		var vScore, fScore *float64

		if rank, ok := vectorRanked[id]; ok {
			score += weights.VectorWeight / float64(k+rank)
			v := vectorByID[id].Score
			vScore = &v
		}
		if rank, ok := fulltextRanked[id]; ok {
			score += weights.FulltextWeight / float64(k+rank)
			f := fulltextByID[id].Score
			fScore = &f
		}

		metadata := mergeMetadata(vectorByID[id].Metadata, fulltextByID[id].Metadata)

		results = append(results, hrce.SearchResult{
			ID:            id,
			Score:         score,
			VectorScore:   vScore,
			FulltextScore: fScore,
			Metadata:      metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	normalizeScores(results)
	return results
}

// normalizeScores rescales the fused RRF scores into [0,1] by dividing
// every score by the batch's maximum. RRF's own scale is tiny by
// construction — with the default k=60, even a result ranked first in
// both legs scores at most 1/61 ≈ 0.016 — which is meaningless compared
// against the adaptive threshold's 0..0.9 range. Dividing by the top
// score preserves order and all tie structure (it's a positive scalar
// multiply), so every ranking invariant still holds; it only changes the
// number attached to each id, not its rank.
func normalizeScores(results []hrce.SearchResult) {
	if len(results) == 0 {
		return
	}
	max := results[0].Score
	if max <= 0 {
		return
	}
	for i := range results {
		results[i].Score /= max
	}
}

// rankOf returns a 1-based rank per ID, sorted by Score descending with
// ID-ascending tie-breaking, matching Fuse's own tie-break rule so rank
// order and output order agree.
func rankOf(records []ports.ScoredRecord) map[string]int {
	sorted := make([]ports.ScoredRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})
	ranks := make(map[string]int, len(sorted))
	for i, rec := range sorted {
		ranks[rec.ID] = i + 1
	}
	return ranks
}

// collapseBestPerID collapses duplicate ids within one list down to a
// single record each, keeping the highest-scoring occurrence — spec.md
// §4.4: "Duplicate ids within a list are collapsed to the best rank before
// fusion." Ranking and id-indexing both run on this collapsed list so a
// duplicate's worse occurrences can never win the map write.
func collapseBestPerID(records []ports.ScoredRecord) []ports.ScoredRecord {
	best := make(map[string]ports.ScoredRecord, len(records))
	for _, rec := range records {
		if cur, ok := best[rec.ID]; !ok || rec.Score > cur.Score {
			best[rec.ID] = rec
		}
	}
	out := make([]ports.ScoredRecord, 0, len(best))
	for _, rec := range best {
		out = append(out, rec)
	}
	return out
}

func indexByID(records []ports.ScoredRecord) map[string]ports.ScoredRecord {
	byID := make(map[string]ports.ScoredRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	return byID
}

func mergeMetadata(vector, fulltext map[string]any) map[string]any {
	if len(vector) == 0 && len(fulltext) == 0 {
		return nil
	}
	merged := make(map[string]any, len(vector)+len(fulltext))
	for k, v := range fulltext {
		merged[k] = v
	}
	for k, v := range vector {
		merged[k] = v
	}
	return merged
}

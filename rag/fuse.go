package rag

import "sort"

// DefaultRRFConstant is the k constant of reciprocal rank fusion. 60 is the
// conventional value; it flattens the contribution curve so that items deep in
// one list cannot dominate items near the top of another.
const DefaultRRFConstant = 60

// FuseByReciprocalRank merges ranked evidence lists into one, deduplicating by
// Source. Each occurrence contributes 1/(k + rank) to its source's fused
// score. A duplicated source keeps the fields of its best-ranked occurrence
// (ties broken by list order). The merged list is ordered by fused score
// descending, then by best contributing rank, and truncated to limit when
// limit > 0.
func FuseByReciprocalRank(k float64, limit int, lists ...[]EvidenceItem) RetrievalResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type fused struct {
		item     EvidenceItem
		score    float64
		bestRank int
		order    int
	}

	bySource := make(map[string]*fused)
	seen := make([]*fused, 0)

	for _, list := range lists {
		for rank, item := range list {
			contribution := 1.0 / (k + float64(rank+1))

			entry, ok := bySource[item.Source]
			if !ok {
				entry = &fused{item: item, bestRank: rank, order: len(seen)}
				bySource[item.Source] = entry
				seen = append(seen, entry)
			} else if rank < entry.bestRank {
				entry.item = item
				entry.bestRank = rank
			}
			entry.score += contribution
		}
	}

	sort.SliceStable(seen, func(i, j int) bool {
		if seen[i].score != seen[j].score {
			return seen[i].score > seen[j].score
		}
		if seen[i].bestRank != seen[j].bestRank {
			return seen[i].bestRank < seen[j].bestRank
		}
		return seen[i].order < seen[j].order
	})

	if limit > 0 && len(seen) > limit {
		seen = seen[:limit]
	}

	out := make(RetrievalResult, len(seen))
	for i, entry := range seen {
		item := entry.item
		item.Score = entry.score
		out[i] = item
	}
	return out
}

// DeduplicateBySource drops later items whose Source was already seen,
// preserving order. Used when appending graph facts to search results.
func DeduplicateBySource(items RetrievalResult) RetrievalResult {
	seen := make(map[string]bool, len(items))
	out := make(RetrievalResult, 0, len(items))
	for _, item := range items {
		if seen[item.Source] {
			continue
		}
		seen[item.Source] = true
		out = append(out, item)
	}
	return out
}

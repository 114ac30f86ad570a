package recents

import "github.com/mmcdole/recents/internal/domain"

// Merge orders canonical by the recency order. Records whose ID appears in
// order come first, in order's sequence; the rest follow in their canonical
// relative order. Only the first occurrence of an ID in order counts, and a
// canonical ID that repeats is ranked once and otherwise left in place.
//
// Runs in O(len(canonical)+len(order)) and never reorders unranked records.
func Merge(canonical []domain.Record, order []string) []domain.Record {
	rank := make(map[string]int, len(order))
	for i, id := range order {
		if _, dup := rank[id]; !dup {
			rank[id] = i
		}
	}

	ranked := make([]domain.Record, len(order))
	filled := make([]bool, len(order))
	rest := make([]domain.Record, 0, len(canonical))

	for _, rec := range canonical {
		if i, ok := rank[rec.ID]; ok && rec.ID != "" && !filled[i] {
			ranked[i] = rec
			filled[i] = true
			continue
		}
		rest = append(rest, rec)
	}

	out := make([]domain.Record, 0, len(canonical))
	for i := range ranked {
		if filled[i] {
			out = append(out, ranked[i])
		}
	}
	return append(out, rest...)
}

// dedupCanonical clones records and drops repeated IDs, keeping the first.
// Records without an ID are kept; they can be shown but never ranked.
func dedupCanonical(records []domain.Record) ([]domain.Record, map[string]domain.Record) {
	out := make([]domain.Record, 0, len(records))
	byID := make(map[string]domain.Record, len(records))
	for _, rec := range records {
		rec = rec.Clone()
		if rec.ID != "" {
			if _, seen := byID[rec.ID]; seen {
				continue
			}
			byID[rec.ID] = rec
		}
		out = append(out, rec)
	}
	return out, byID
}

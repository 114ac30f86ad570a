// Package search narrows a list of records with fuzzy matching while
// keeping the list's own order among equally good matches.
package search

import (
	"slices"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mmcdole/recents/internal/domain"
)

// Match is a record that satisfied a query.
type Match struct {
	Record   domain.Record
	Index    int // position in the input list
	Distance int // lower is better
}

// Matches returns the records matching every word of query, best first.
// A word matches when its letters appear in order, ignoring case and
// accents, in the title, subtitle, or id. Ties keep input order, so a
// recency-ordered list stays recency-ordered within each distance.
func Matches(query string, records []domain.Record) []Match {
	words := strings.Fields(query)
	if len(words) == 0 {
		return nil
	}

	var matches []Match
	for i, rec := range records {
		if d, ok := distance(words, rec); ok {
			matches = append(matches, Match{Record: rec, Index: i, Distance: d})
		}
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		return a.Distance - b.Distance
	})
	return matches
}

// Filter returns the records matching query, best first. An empty query
// returns records unchanged.
func Filter(query string, records []domain.Record) []domain.Record {
	if strings.TrimSpace(query) == "" {
		return records
	}
	matches := Matches(query, records)
	out := make([]domain.Record, len(matches))
	for i, m := range matches {
		out[i] = m.Record
	}
	return out
}

// distance sums, over all words, the best distance among the record's
// searchable fields. Any word without a match rejects the record.
func distance(words []string, rec domain.Record) (int, bool) {
	fields := []string{rec.DisplayTitle(), rec.Subtitle, rec.ID}

	total := 0
	for _, w := range words {
		best := -1
		for _, f := range fields {
			if f == "" {
				continue
			}
			if d := fuzzy.RankMatchNormalizedFold(w, f); d >= 0 && (best < 0 || d < best) {
				best = d
			}
		}
		if best < 0 {
			return 0, false
		}
		total += best
	}
	return total, true
}

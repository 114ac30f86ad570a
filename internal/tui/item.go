package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/recents/internal/domain"
)

// recordItem implements list.DefaultItem for records
type recordItem struct {
	record domain.Record
	recent bool // present in the recency index
}

// FilterValue starts with the title so match positions line up with Title.
func (i recordItem) FilterValue() string {
	return strings.TrimSpace(i.record.DisplayTitle() + " " + i.record.Subtitle)
}

func (i recordItem) Title() string { return i.record.DisplayTitle() }

func (i recordItem) Description() string {
	marker := "  "
	if i.recent {
		marker = "● "
	}
	switch {
	case i.record.Subtitle != "":
		return marker + i.record.Subtitle
	case i.record.URL != "":
		return marker + i.record.URL
	default:
		return marker + i.record.ID
	}
}

// toItems wraps records for the list, marking the ones in recent.
func toItems(records []domain.Record, recent map[string]bool) []list.Item {
	items := make([]list.Item, len(records))
	for i, rec := range records {
		items[i] = recordItem{record: rec, recent: recent[rec.ID]}
	}
	return items
}

// fuzzyFilter ranks list items with sahilm/fuzzy. Equal scores keep the
// list order, so recent records stay ahead of older ones.
func fuzzyFilter(term string, targets []string) []list.Rank {
	matches := fuzzy.Find(strings.ToLower(term), lowerAll(targets))
	ranks := make([]list.Rank, len(matches))
	for i, match := range matches {
		ranks[i] = list.Rank{
			Index:          match.Index,
			MatchedIndexes: match.MatchedIndexes,
		}
	}
	return ranks
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

package recents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/recents/internal/domain"
)

// storedEntry is the on-disk shape of one recency slot. The blob is a JSON
// array of these, most recent first.
type storedEntry struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	Subtitle  string            `json:"subtitle,omitempty"`
	URL       string            `json:"url,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	TouchedAt *time.Time        `json:"touched_at,omitempty"`
	Touches   int               `json:"touches,omitempty"`
}

// looseEntry accepts what older writers stored: numeric ids and a "name"
// instead of a "title".
type looseEntry struct {
	ID        json.RawMessage   `json:"id"`
	Title     string            `json:"title"`
	Name      string            `json:"name"`
	Subtitle  string            `json:"subtitle"`
	URL       string            `json:"url"`
	Fields    map[string]string `json:"fields"`
	TouchedAt *time.Time        `json:"touched_at"`
	Touches   int               `json:"touches"`
}

func encodeEntries(entries []domain.Entry) (string, error) {
	stored := make([]storedEntry, len(entries))
	for i, e := range entries {
		s := storedEntry{
			ID:       e.Record.ID,
			Title:    e.Record.Title,
			Subtitle: e.Record.Subtitle,
			URL:      e.Record.URL,
			Fields:   e.Record.Fields,
			Touches:  e.Touches,
		}
		if !e.TouchedAt.IsZero() {
			t := e.TouchedAt.UTC()
			s.TouchedAt = &t
		}
		stored[i] = s
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode recents: %w", err)
	}
	return string(data), nil
}

// decodeEntries validates a stored blob. A blob that is not a JSON array is
// an error; individual malformed elements are skipped and counted.
func decodeEntries(raw string, keepDuplicates bool, limit int) ([]domain.Entry, int, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, 0, fmt.Errorf("failed to decode recents: %w", err)
	}

	entries := make([]domain.Entry, 0, len(elems))
	seen := make(map[string]bool, len(elems))
	skipped := 0

	for _, elem := range elems {
		var le looseEntry
		if !bytes.HasPrefix(bytes.TrimSpace(elem), []byte("{")) || json.Unmarshal(elem, &le) != nil {
			skipped++
			continue
		}
		id, ok := decodeID(le.ID)
		if !ok {
			skipped++
			continue
		}
		if !keepDuplicates {
			if seen[id] {
				continue
			}
			seen[id] = true
		}

		title := le.Title
		if title == "" {
			title = le.Name
		}
		e := domain.Entry{
			Record: domain.Record{
				ID:       id,
				Title:    title,
				Subtitle: le.Subtitle,
				URL:      le.URL,
				Fields:   le.Fields,
			},
			Touches: le.Touches,
		}
		if le.TouchedAt != nil {
			e.TouchedAt = *le.TouchedAt
		}
		entries = append(entries, e)

		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, skipped, nil
}

// decodeID accepts a non-empty JSON string or a JSON number. Integral
// numbers are normalised to their decimal form so 42 and 42.0 match "42".
func decodeID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || n == "" {
		return "", false
	}
	return domain.NumberID(n), true
}

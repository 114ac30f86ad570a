package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is an externally sourced item. The source owns its content; the
// local cache keeps a copy for instant render and remembers only its ID for
// ordering.
type Record struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Subtitle string            `json:"subtitle,omitempty"`
	URL      string            `json:"url,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// DisplayTitle returns the title, falling back to the ID for untitled records.
func (r Record) DisplayTitle() string {
	if strings.TrimSpace(r.Title) != "" {
		return r.Title
	}
	return r.ID
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	if r.Fields != nil {
		fields := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		r.Fields = fields
	}
	return r
}

// Entry is one slot of the recency index together with the cached copy of
// its record.
type Entry struct {
	Record    Record
	TouchedAt time.Time // zero if never touched in this or a previous run
	Touches   int       // times touched since first seen
}

// IDs returns the IDs of records in order.
func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// NumberID renders a numeric identifier the way sources that use string IDs
// would: integral values in plain decimal, anything else as written.
func NumberID(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return n.String()
}

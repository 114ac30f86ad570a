package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mmcdole/recents/internal/config"
	"github.com/mmcdole/recents/internal/domain"
)

// Mapper turns loosely shaped JSON objects into records.
type Mapper struct {
	fields config.FieldMap
}

// NewMapper fills in conventional key names for anything left unset.
func NewMapper(fields config.FieldMap) Mapper {
	if fields.ID == "" {
		fields.ID = "id"
	}
	if fields.URL == "" {
		fields.URL = "url"
	}
	return Mapper{fields: fields}
}

// Map converts objects to records, skipping objects without a usable id.
// It returns how many objects were skipped.
func (m Mapper) Map(objects []map[string]any) ([]domain.Record, int) {
	records := make([]domain.Record, 0, len(objects))
	skipped := 0
	for _, obj := range objects {
		rec, ok := m.mapOne(obj)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func (m Mapper) mapOne(obj map[string]any) (domain.Record, bool) {
	id, ok := scalarString(obj[m.fields.ID])
	if !ok || id == "" {
		return domain.Record{}, false
	}

	rec := domain.Record{ID: id}
	used := map[string]bool{m.fields.ID: true, m.fields.URL: true}

	if m.fields.Title != "" {
		rec.Title, _ = scalarString(obj[m.fields.Title])
		used[m.fields.Title] = true
	} else {
		// Sources disagree on what to call the display name.
		for _, key := range []string{"title", "name"} {
			if s, ok := scalarString(obj[key]); ok && s != "" {
				rec.Title = s
				used[key] = true
				break
			}
		}
	}
	if m.fields.Subtitle != "" {
		rec.Subtitle, _ = scalarString(obj[m.fields.Subtitle])
		used[m.fields.Subtitle] = true
	}
	rec.URL, _ = scalarString(obj[m.fields.URL])

	for k, v := range obj {
		if used[k] {
			continue
		}
		if s, ok := scalarString(v); ok {
			if rec.Fields == nil {
				rec.Fields = make(map[string]string)
			}
			rec.Fields[k] = s
		}
	}
	return rec, true
}

// scalarString renders strings, numbers and booleans. Objects, arrays and
// nulls are not scalars.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return domain.NumberID(x), true
	case float64:
		return domain.NumberID(json.Number(strconv.FormatFloat(x, 'f', -1, 64))), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// page is one decoded response body.
type page struct {
	objects []map[string]any
	total   int // -1 when the body does not say
}

// decodePage accepts either a bare JSON array or an object holding the
// array under listField.
func decodePage(body []byte, listField, totalField string) (page, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return page{}, fmt.Errorf("failed to parse response: %w", err)
	}

	p := page{total: -1}
	var list any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		if listField == "" {
			return page{}, fmt.Errorf("response is an object; set list_field to the key holding the records")
		}
		list = v[listField]
		if totalField != "" {
			if n, ok := v[totalField].(json.Number); ok {
				if total, err := n.Int64(); err == nil {
					p.total = int(total)
				}
			}
		}
	default:
		return page{}, fmt.Errorf("response is neither an array nor an object")
	}

	items, ok := list.([]any)
	if !ok {
		if list == nil {
			return p, nil
		}
		return page{}, fmt.Errorf("%q is not an array", listField)
	}
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			p.objects = append(p.objects, obj)
		}
	}
	return p, nil
}

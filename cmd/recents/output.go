package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmcdole/recents/internal/domain"
)

// listRow is one printed record with its recency metadata
type listRow struct {
	domain.Record
	Recent    bool       `json:"recent"`
	Touches   int        `json:"touches,omitempty"`
	TouchedAt *time.Time `json:"touched_at,omitempty"`
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func (a *app) printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRecords prints records in order. Recent ones are marked with "*".
func (a *app) printRecords(cmd *cobra.Command, records []domain.Record, entries []domain.Entry) error {
	byID := make(map[string]domain.Entry, len(entries))
	for _, e := range entries {
		if _, seen := byID[e.Record.ID]; !seen {
			byID[e.Record.ID] = e
		}
	}

	rows := make([]listRow, len(records))
	for i, rec := range records {
		rows[i] = listRow{Record: rec}
		if e, ok := byID[rec.ID]; ok {
			rows[i].Recent = true
			rows[i].Touches = e.Touches
			if !e.TouchedAt.IsZero() {
				t := e.TouchedAt
				rows[i].TouchedAt = &t
			}
		}
	}

	if a.jsonOut {
		return a.printJSON(cmd, rows)
	}

	tw := newTabWriter(cmd.OutOrStdout())
	for _, r := range rows {
		mark := " "
		if r.Recent {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, r.ID, r.DisplayTitle(), r.URL)
	}
	return tw.Flush()
}

func (a *app) printRecord(cmd *cobra.Command, rec domain.Record) error {
	if a.jsonOut {
		return a.printJSON(cmd, rec)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rec.ID, rec.DisplayTitle())
	return err
}

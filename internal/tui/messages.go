package tui

import "github.com/mmcdole/recents/internal/domain"

// Message types for the TUI

// RefreshedMsg carries the result of a background refresh. Records holds the
// cached view when Err is set.
type RefreshedMsg struct {
	Records []domain.Record
	Err     error
}

// PersistMsg reports a background write of the recency index
type PersistMsg struct {
	Result domain.PersistResult
}

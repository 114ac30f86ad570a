package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/recents/internal/domain"
)

// Command factories for async operations

const refreshTimeout = 30 * time.Second

// RefreshCmd fetches the canonical list and reconciles it
func RefreshCmd(svc Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		records, err := svc.Refresh(ctx)
		return RefreshedMsg{Records: records, Err: err}
	}
}

// ListenPersistCmd waits for the next persist result. It returns nil once
// the channel is closed.
func ListenPersistCmd(ch <-chan domain.PersistResult) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		result, ok := <-ch
		if !ok {
			return nil
		}
		return PersistMsg{Result: result}
	}
}

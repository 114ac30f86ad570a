package tui

import "github.com/mmcdole/recents/internal/domain"

// ChannelObserver adapts domain.PersistObserver to a channel for Bubble Tea.
type ChannelObserver struct {
	ch chan<- domain.PersistResult
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- domain.PersistResult) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnPersist sends the result to the channel (non-blocking if full).
func (o *ChannelObserver) OnPersist(result domain.PersistResult) {
	select {
	case o.ch <- result:
	default: // Non-blocking if channel full
	}
}

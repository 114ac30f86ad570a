package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the picker's own bindings. Movement and filtering are
// left to the list component.
type KeyMap struct {
	Enter   key.Binding
	Refresh key.Binding
	Forget  key.Binding
	Quit    key.Binding
	Escape  key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Forget: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "forget"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter/quit"),
		),
	}
}

// ShortHelp returns the bindings shown under the list
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.Refresh, k.Forget, k.Quit}
}

// FullHelp returns all bindings
func (k KeyMap) FullHelp() []key.Binding {
	return []key.Binding{k.Enter, k.Refresh, k.Forget, k.Quit, k.Escape}
}

package tui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/recents/internal/domain"
	"github.com/mmcdole/recents/internal/tui/styles"
)

// Service is what the picker needs from the recents service
type Service interface {
	Namespace() string
	HasSource() bool
	Cached() []domain.Record
	Refresh(ctx context.Context) ([]domain.Record, error)
	Open(id string) (domain.Record, error)
	Forget(id string) bool
	Entries() []domain.Entry
}

// footerHeight is the status line under the list
const footerHeight = 1

// Model is the picker: a filterable list of records, most recent first
type Model struct {
	svc     Service
	list    list.Model
	keys    KeyMap
	persist <-chan domain.PersistResult
	logger  *slog.Logger

	refreshing  bool
	spinnerCmd  tea.Cmd
	status      string
	statusIsErr bool
	chosen      *domain.Record
}

// NewModel creates a picker showing the cached view. persist may be nil.
func NewModel(svc Service, persist <-chan domain.PersistResult, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}

	keys := DefaultKeyMap()

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.Styles.SelectedTitle = styles.SelectedItemStyle
	delegate.Styles.SelectedDesc = styles.SelectedDescStyle
	delegate.Styles.NormalTitle = styles.NormalItemStyle
	delegate.Styles.NormalDesc = styles.NormalDescStyle
	delegate.Styles.FilterMatch = styles.MatchHighlightStyle

	l := list.New(nil, delegate, 0, 0)
	l.Title = svc.Namespace()
	l.Filter = fuzzyFilter
	l.SetShowStatusBar(false)
	l.SetShowPagination(true)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()
	l.Styles.Title = styles.TitleStyle
	l.Styles.FilterPrompt = styles.FilterPromptStyle
	l.Styles.FilterCursor = styles.FilterCursorStyle
	l.AdditionalShortHelpKeys = keys.ShortHelp
	l.AdditionalFullHelpKeys = keys.FullHelp

	m := Model{
		svc:     svc,
		list:    l,
		keys:    keys,
		persist: persist,
		logger:  logger,
	}
	m.setRecords(svc.Cached())

	if svc.HasSource() {
		m.refreshing = true
		m.spinnerCmd = m.list.StartSpinner()
	}
	return m
}

// Init starts the background refresh
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenPersistCmd(m.persist)}
	if m.refreshing {
		cmds = append(cmds, m.spinnerCmd, RefreshCmd(m.svc))
	}
	return tea.Batch(cmds...)
}

// Chosen returns the record picked with enter, if any
func (m Model) Chosen() (domain.Record, bool) {
	if m.chosen == nil {
		return domain.Record{}, false
	}
	return *m.chosen, true
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, max(msg.Height-footerHeight, 0))
		return m, nil

	case RefreshedMsg:
		m.refreshing = false
		m.list.StopSpinner()
		if msg.Err != nil {
			m.setStatus(fmt.Sprintf("refresh failed: %v", msg.Err), true)
		} else {
			m.setStatus(fmt.Sprintf("%d records", len(msg.Records)), false)
		}
		return m, m.setRecords(msg.Records)

	case PersistMsg:
		if msg.Result.Err != nil {
			m.setStatus(fmt.Sprintf("failed to save recents: %v", msg.Result.Err), true)
		}
		return m, ListenPersistCmd(m.persist)

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		return m.handleKeyMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Escape):
		if m.list.FilterState() == list.FilterApplied {
			m.list.ResetFilter()
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Enter):
		return m.handleEnter()

	case key.Matches(msg, m.keys.Refresh):
		if !m.svc.HasSource() {
			m.setStatus("no source configured", true)
			return m, nil
		}
		if m.refreshing {
			return m, nil
		}
		m.refreshing = true
		m.setStatus("refreshing...", false)
		return m, tea.Batch(m.list.StartSpinner(), RefreshCmd(m.svc))

	case key.Matches(msg, m.keys.Forget):
		rec, ok := m.selected()
		if !ok {
			return m, nil
		}
		if m.svc.Forget(rec.ID) {
			m.setStatus("forgot "+rec.DisplayTitle(), false)
		}
		return m, m.setRecords(m.svc.Cached())
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleEnter touches the selected record and quits with it as the choice
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	rec, ok := m.selected()
	if !ok {
		return m, nil
	}
	opened, err := m.svc.Open(rec.ID)
	if err != nil {
		m.logger.Warn("failed to open record", "id", rec.ID, "error", err)
		m.setStatus(fmt.Sprintf("cannot open %s: %v", rec.DisplayTitle(), err), true)
		return m, nil
	}
	m.chosen = &opened
	return m, tea.Quit
}

func (m Model) selected() (domain.Record, bool) {
	item, ok := m.list.SelectedItem().(recordItem)
	if !ok {
		return domain.Record{}, false
	}
	return item.record, true
}

func (m *Model) setRecords(records []domain.Record) tea.Cmd {
	recent := make(map[string]bool)
	for _, e := range m.svc.Entries() {
		recent[e.Record.ID] = true
	}
	return m.list.SetItems(toItems(records, recent))
}

func (m *Model) setStatus(status string, isErr bool) {
	m.status = status
	m.statusIsErr = isErr
}

// View renders the list and the status line
func (m Model) View() string {
	status := styles.StatusStyle.Render(styles.Truncate(m.status, max(m.list.Width()-2, 0)))
	if m.statusIsErr {
		status = styles.ErrorStyle.Render(" " + styles.Truncate(m.status, max(m.list.Width()-2, 0)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), status)
}

package tui

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/recents/internal/domain"
	"github.com/mmcdole/recents/internal/logging"
)

type fakeService struct {
	records   []domain.Record
	recent    []string
	hasSource bool
	fetched   []domain.Record
	fetchErr  error
	opened    []string
}

func (f *fakeService) Namespace() string { return "pages" }
func (f *fakeService) HasSource() bool   { return f.hasSource }

func (f *fakeService) Cached() []domain.Record { return slices.Clone(f.records) }

func (f *fakeService) Refresh(context.Context) ([]domain.Record, error) {
	if f.fetchErr != nil {
		return f.Cached(), f.fetchErr
	}
	f.records = f.fetched
	return f.Cached(), nil
}

func (f *fakeService) Open(id string) (domain.Record, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			f.opened = append(f.opened, id)
			return rec, nil
		}
	}
	return domain.Record{}, domain.ErrNotFound
}

func (f *fakeService) Forget(id string) bool {
	n := len(f.records)
	f.records = slices.DeleteFunc(f.records, func(r domain.Record) bool { return r.ID == id })
	f.recent = slices.DeleteFunc(f.recent, func(s string) bool { return s == id })
	return len(f.records) != n
}

func (f *fakeService) Entries() []domain.Entry {
	entries := make([]domain.Entry, 0, len(f.recent))
	for _, id := range f.recent {
		entries = append(entries, domain.Entry{Record: domain.Record{ID: id}})
	}
	return entries
}

func recs(ids ...string) []domain.Record {
	out := make([]domain.Record, len(ids))
	for i, id := range ids {
		out[i] = domain.Record{ID: id, Title: "title " + id}
	}
	return out
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(t *testing.T, svc *fakeService, persist <-chan domain.PersistResult) Model {
	t.Helper()
	m := NewModel(svc, persist, logging.NullLogger())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func itemIDs(m Model) []string {
	var ids []string
	for _, it := range m.list.VisibleItems() {
		ids = append(ids, it.(recordItem).record.ID)
	}
	return ids
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestNewModel_ShowsCachedView(t *testing.T) {
	svc := &fakeService{records: recs("b", "a", "c"), recent: []string{"b"}}
	m := newModel(t, svc, nil)

	assert.Equal(t, []string{"b", "a", "c"}, itemIDs(m))
	items := m.list.Items()
	assert.True(t, items[0].(recordItem).recent)
	assert.False(t, items[1].(recordItem).recent)
	assert.Nil(t, m.Init(), "nothing to do without a source")
}

func TestInit_RefreshesWhenSourced(t *testing.T) {
	svc := &fakeService{hasSource: true}
	m := newModel(t, svc, nil)

	assert.True(t, m.refreshing)
	assert.NotNil(t, m.Init())
}

func TestRefreshedMsg(t *testing.T) {
	svc := &fakeService{records: recs("a"), hasSource: true, fetched: recs("a", "b")}
	m := newModel(t, svc, nil)

	msg := RefreshCmd(svc)()
	m, _ = send(t, m, msg)

	assert.False(t, m.refreshing)
	assert.Equal(t, []string{"a", "b"}, itemIDs(m))
	assert.Equal(t, "2 records", m.status)
	assert.False(t, m.statusIsErr)
}

func TestRefreshedMsg_Failure(t *testing.T) {
	svc := &fakeService{records: recs("a"), hasSource: true, fetchErr: domain.ErrSourceUnavailable}
	m := newModel(t, svc, nil)

	m, _ = send(t, m, RefreshCmd(svc)())

	assert.Equal(t, []string{"a"}, itemIDs(m), "cached view stays")
	assert.True(t, m.statusIsErr)
	assert.Contains(t, m.status, "refresh failed")
	assert.Contains(t, m.View(), "refresh failed")
}

func TestEnter_OpensSelectedAndQuits(t *testing.T) {
	svc := &fakeService{records: recs("a", "b", "c")}
	m := newModel(t, svc, nil)

	m, _ = send(t, m, keyPress("j"))
	m, cmd := send(t, m, keyPress("enter"))

	assert.True(t, isQuit(cmd))
	assert.Equal(t, []string{"b"}, svc.opened)
	chosen, ok := m.Chosen()
	require.True(t, ok)
	assert.Equal(t, "b", chosen.ID)
}

func TestEnter_OpenFailureStays(t *testing.T) {
	svc := &fakeService{records: recs("a")}
	m := newModel(t, svc, nil)
	svc.records = nil // gone from the service since the list was built

	m, cmd := send(t, m, keyPress("enter"))

	assert.False(t, isQuit(cmd))
	_, ok := m.Chosen()
	assert.False(t, ok)
	assert.True(t, m.statusIsErr)
}

func TestEnter_EmptyList(t *testing.T) {
	m := newModel(t, &fakeService{}, nil)
	_, cmd := send(t, m, keyPress("enter"))
	assert.Nil(t, cmd)
}

func TestForget(t *testing.T) {
	svc := &fakeService{records: recs("a", "b"), recent: []string{"a"}}
	m := newModel(t, svc, nil)

	m, _ = send(t, m, keyPress("x"))

	assert.Equal(t, []string{"b"}, itemIDs(m))
	assert.Equal(t, "forgot title a", m.status)
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []string{"q", "esc", "ctrl+c"} {
		m := newModel(t, &fakeService{records: recs("a")}, nil)
		_, cmd := send(t, m, keyPress(k))
		assert.True(t, isQuit(cmd), k)
	}
}

func TestEscClearsAppliedFilter(t *testing.T) {
	svc := &fakeService{records: []domain.Record{
		{ID: "1", Title: "Meeting docs"},
		{ID: "2", Title: "Recipes"},
		{ID: "3", Title: "Docs"},
	}}
	m := newModel(t, svc, nil)

	m.list.SetFilterText("docs")
	require.Equal(t, list.FilterApplied, m.list.FilterState())
	assert.ElementsMatch(t, []string{"1", "3"}, itemIDs(m))

	m, cmd := send(t, m, keyPress("esc"))
	assert.False(t, isQuit(cmd))
	assert.Equal(t, list.Unfiltered, m.list.FilterState())
	assert.Len(t, itemIDs(m), 3)
}

func TestRefreshKey(t *testing.T) {
	m := newModel(t, &fakeService{}, nil)
	m, cmd := send(t, m, keyPress("r"))
	assert.Nil(t, cmd)
	assert.Equal(t, "no source configured", m.status)

	svc := &fakeService{hasSource: true}
	m = newModel(t, svc, nil)
	m, cmd = send(t, m, keyPress("r"))
	assert.Nil(t, cmd, "already refreshing from startup")

	m, _ = send(t, m, RefreshedMsg{})
	m, cmd = send(t, m, keyPress("r"))
	assert.NotNil(t, cmd)
	assert.True(t, m.refreshing)
}

func TestPersistMsg(t *testing.T) {
	ch := make(chan domain.PersistResult, 1)
	m := newModel(t, &fakeService{}, ch)

	m, cmd := send(t, m, PersistMsg{Result: domain.PersistResult{Namespace: "pages"}})
	assert.NotNil(t, cmd, "keeps listening")
	assert.Empty(t, m.status)

	m, _ = send(t, m, PersistMsg{Result: domain.PersistResult{Err: errors.New("disk full")}})
	assert.True(t, m.statusIsErr)
	assert.Contains(t, m.status, "disk full")
}

func TestListenPersistCmd(t *testing.T) {
	assert.Nil(t, ListenPersistCmd(nil))

	ch := make(chan domain.PersistResult, 1)
	obs := NewChannelObserver(ch)
	obs.OnPersist(domain.PersistResult{Namespace: "a"})
	obs.OnPersist(domain.PersistResult{Namespace: "dropped"}) // full, must not block

	msg := ListenPersistCmd(ch)()
	assert.Equal(t, PersistMsg{Result: domain.PersistResult{Namespace: "a"}}, msg)

	close(ch)
	assert.Nil(t, ListenPersistCmd(ch)())
}

func TestFuzzyFilter(t *testing.T) {
	ranks := fuzzyFilter("DOC", []string{"Recipes", "Meeting docs", "Docs"})

	require.Len(t, ranks, 2)
	indexes := []int{ranks[0].Index, ranks[1].Index}
	assert.ElementsMatch(t, []int{1, 2}, indexes)
	assert.NotEmpty(t, ranks[0].MatchedIndexes)
}

package recents

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mmcdole/recents/internal/domain"
	"github.com/mmcdole/recents/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is a KVStore whose reads and writes can be made to fail.
type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	failSet error
	failGet error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return "", false, s.failGet
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.sets++
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) Keys(string) ([]string, error) { return nil, nil }
func (s *memStore) Close() error                  { return nil }

func (s *memStore) setFailure(err error) {
	s.mu.Lock()
	s.failSet = err
	s.mu.Unlock()
}

func (s *memStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func (s *memStore) raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func open(t *testing.T, kv domain.KVStore, opts Options) *Reconciler {
	t.Helper()
	if opts.Namespace == "" {
		opts.Namespace = "test"
	}
	r := New(kv, opts, nil)
	require.NoError(t, r.Init())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestTouch_Idempotent(t *testing.T) {
	r := open(t, newMemStore(), Options{})
	r.Reconcile(recs("a", "b", "c"))

	require.True(t, r.Touch("b"))
	once := r.Order()

	require.True(t, r.Touch("b"))
	assert.Equal(t, once, r.Order())
	assert.Equal(t, []string{"b"}, r.Order())
}

func TestTouch_DedupInvariant(t *testing.T) {
	r := open(t, newMemStore(), Options{})
	ids := []string{"a", "b", "c", "d", "e"}
	r.Reconcile(recs(ids...))

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		id := ids[rng.Intn(len(ids))]
		require.True(t, r.Touch(id))

		order := r.Order()
		require.Equal(t, id, order[0])
		seen := map[string]bool{}
		for _, got := range order {
			require.False(t, seen[got], "duplicate %q in %v", got, order)
			seen[got] = true
		}
	}
}

func TestTouch_UnknownIsNoOp(t *testing.T) {
	kv := newMemStore()
	r := open(t, kv, Options{})
	r.Reconcile(recs("a"))

	assert.False(t, r.Touch("zzz"))
	assert.False(t, r.Touch(""))
	assert.Empty(t, r.Order())

	require.NoError(t, r.Flush(context.Background()))
	_, written := kv.raw(Key("test"))
	assert.False(t, written, "no-op touch must not write")
}

func TestTouch_MemoryUpdatedBeforePersist(t *testing.T) {
	kv := newMemStore()
	kv.setFailure(errors.New("disk full"))
	r := open(t, kv, Options{})
	r.Reconcile(recs("a", "b"))

	require.True(t, r.Touch("b"))

	assert.Equal(t, []string{"b", "a"}, domain.IDs(r.View()))
}

func TestReconcile_StablePartition(t *testing.T) {
	r := open(t, newMemStore(), Options{})
	r.Reconcile(recs("A", "B", "C"))
	r.Touch("A")
	r.Touch("C")

	got := r.Reconcile(recs("A", "B", "C"))

	assert.Equal(t, []string{"C", "A", "B"}, domain.IDs(got))
}

func TestReconcile_RefreshesCachedContent(t *testing.T) {
	kv := newMemStore()
	r := open(t, kv, Options{})
	r.Reconcile([]domain.Record{{ID: "1", Title: "old"}})
	r.Touch("1")

	r.Reconcile([]domain.Record{{ID: "1", Title: "new"}})
	require.NoError(t, r.Flush(context.Background()))

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Record.Title)

	restarted := open(t, kv, Options{})
	assert.Equal(t, "new", restarted.View()[0].Title)
}

func TestReconcile_DoesNotRememberCanonical(t *testing.T) {
	kv := newMemStore()
	r := open(t, kv, Options{})

	got := r.Reconcile(recs("p1", "p2", "p3"))

	assert.Equal(t, []string{"p1", "p2", "p3"}, domain.IDs(got))
	assert.Empty(t, r.Order())
}

func TestReconcile_KeepsMissingByDefault(t *testing.T) {
	r := open(t, newMemStore(), Options{})
	r.Reconcile(recs("a", "b"))
	r.Touch("a")

	got := r.Reconcile(recs("b"))

	assert.Equal(t, []string{"b"}, domain.IDs(got))
	assert.Equal(t, []string{"a"}, r.Order())
}

func TestReconcile_PruneMissing(t *testing.T) {
	r := open(t, newMemStore(), Options{PruneMissing: true})
	r.Reconcile(recs("a", "b"))
	r.Touch("a")
	r.Touch("b")

	r.Reconcile(recs("b", "c"))

	assert.Equal(t, []string{"b"}, r.Order())
}

func TestReconcile_DoesNotAliasCallerRecords(t *testing.T) {
	r := open(t, newMemStore(), Options{})
	canonical := []domain.Record{{ID: "a", Fields: map[string]string{"k": "v"}}}

	got := r.Reconcile(canonical)
	canonical[0].Fields["k"] = "changed"
	got[0].Fields["k"] = "changed too"

	assert.Equal(t, "v", r.View()[0].Fields["k"])
}

// Store starts empty, p2 gets touched, the process restarts.
func TestScenario_RestartKeepsRecency(t *testing.T) {
	kv := newMemStore()

	first := open(t, kv, Options{})
	first.Reconcile(recs("p1", "p2", "p3"))
	require.True(t, first.Touch("p2"))
	require.NoError(t, first.Persist(context.Background()))
	require.NoError(t, first.Close())

	second := open(t, kv, Options{})
	assert.Equal(t, []string{"p2"}, domain.IDs(second.Load()))
	assert.Equal(t, []string{"p2"}, second.Order())

	got := second.Reconcile(recs("p1", "p2", "p3"))
	assert.Equal(t, []string{"p2", "p1", "p3"}, domain.IDs(got))

	// Then p2 is removed.
	require.True(t, second.Remove("p2"))
	assert.Equal(t, []string{"p1", "p3"}, domain.IDs(second.View()))
	assert.Empty(t, second.Order())
	assert.False(t, second.Touch("p2"), "removed record is unknown until the next reconcile")

	got = second.Reconcile(recs("p1", "p2", "p3"))
	assert.Equal(t, []string{"p1", "p2", "p3"}, domain.IDs(got))
}

func TestRemove_Idempotent(t *testing.T) {
	kv := newMemStore()
	r := open(t, kv, Options{})
	r.Reconcile(recs("a", "b"))
	r.Touch("a")

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("zzz"))
	require.NoError(t, r.Flush(context.Background()))
	sets := kv.setCount()

	assert.False(t, r.Remove("a"))
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, sets, kv.setCount(), "removing an absent id must not write")
}

func TestLoad_CorruptBlob(t *testing.T) {
	kv := newMemStore()
	kv.data[Key("test")] = "{not json"

	r := open(t, kv, Options{})

	assert.Empty(t, r.Load())
	assert.Empty(t, r.Order())
	raw, _ := kv.raw(Key("test"))
	assert.Equal(t, "{not json", raw, "load must not write")
}

func TestLoad_ReadFailure(t *testing.T) {
	kv := newMemStore()
	kv.failGet = errors.New("permission denied")

	r := open(t, kv, Options{})

	assert.Empty(t, r.Load())
}

func TestLoad_MissingKey(t *testing.T) {
	r := open(t, newMemStore(), Options{})
	assert.Empty(t, r.Load())
	assert.Empty(t, r.View())
}

func TestLoad_TouchCachedBeforeReconcile(t *testing.T) {
	kv := newMemStore()
	kv.data[Key("test")] = `[{"id":"x","title":"X"},{"id":"y","title":"Y"}]`
	r := open(t, kv, Options{})

	require.True(t, r.Touch("y"))

	assert.Equal(t, []string{"y", "x"}, domain.IDs(r.View()))
	assert.Equal(t, "Y", r.View()[0].Title)
}

func TestPersist_FailureKeepsMemoryAuthoritative(t *testing.T) {
	kv := newMemStore()
	var (
		mu      sync.Mutex
		results []domain.PersistResult
	)
	observer := domain.PersistObserverFunc(func(res domain.PersistResult) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	})
	r := open(t, kv, Options{Observer: observer})
	r.Reconcile(recs("a", "b"))

	writeErr := errors.New("disk full")
	kv.setFailure(writeErr)
	r.Touch("b")

	err := r.Flush(context.Background())
	require.ErrorIs(t, err, writeErr)
	assert.Equal(t, []string{"b"}, r.Order())

	// The next flush retries because the change was never saved.
	kv.setFailure(nil)
	require.NoError(t, r.Flush(context.Background()))
	raw, ok := kv.raw(Key("test"))
	require.True(t, ok)
	assert.Contains(t, raw, `"id":"b"`)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, results)
	assert.Equal(t, "test", results[0].Namespace)
	var sawFailure bool
	for _, res := range results {
		if errors.Is(res.Err, writeErr) {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure)
}

func TestPersist_CanceledContext(t *testing.T) {
	r := open(t, newMemStore(), Options{})

	// Hold the write slot so Persist has to wait.
	r.writeSem <- struct{}{}
	defer func() { <-r.writeSem }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Persist(ctx), context.Canceled)
}

func TestBackgroundWriterPersists(t *testing.T) {
	kv := newMemStore()
	r := open(t, kv, Options{})
	r.Reconcile(recs("a", "b"))
	r.Touch("b")

	assert.Eventually(t, func() bool {
		raw, ok := kv.raw(Key("test"))
		return ok && raw != "" && raw != "[]"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLimit_EvictsOldest(t *testing.T) {
	r := open(t, newMemStore(), Options{Limit: 3})
	r.Reconcile(recs("a", "b", "c", "d"))
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Touch(id)
	}

	assert.Equal(t, []string{"d", "c", "b"}, r.Order())
	assert.Equal(t, []string{"d", "c", "b", "a"}, domain.IDs(r.View()))
}

func TestKeepDuplicates(t *testing.T) {
	kv := newMemStore()
	r := open(t, kv, Options{KeepDuplicates: true, Limit: 4})
	r.Reconcile(recs("a", "b"))
	r.Touch("a")
	r.Touch("b")
	r.Touch("a")

	assert.Equal(t, []string{"a", "b", "a"}, r.Order())
	assert.Equal(t, []string{"a", "b"}, domain.IDs(r.View()))
	require.NoError(t, r.Close())

	restarted := open(t, kv, Options{KeepDuplicates: true, Limit: 4})
	assert.Equal(t, []string{"a", "b", "a"}, restarted.Order())
	assert.Equal(t, []string{"a", "b"}, domain.IDs(restarted.View()))
}

func TestTouch_CountsAndTimestamps(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { now = now.Add(time.Minute); return now }
	r := open(t, newMemStore(), Options{Now: clock})
	r.Reconcile(recs("a"))

	r.Touch("a")
	r.Touch("a")

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Touches)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC), entries[0].TouchedAt)
}

func TestUpsert(t *testing.T) {
	r := open(t, newMemStore(), Options{})

	assert.ErrorIs(t, r.Upsert(domain.Record{}), domain.ErrInvalidRecord)

	// Before any reconcile the record lives only in the cache.
	require.NoError(t, r.Upsert(domain.Record{ID: "slug", Title: "short link"}))
	assert.Equal(t, []string{"slug"}, domain.IDs(r.View()))

	// A record the source does not know yet is shown ahead of it.
	r.Reconcile(recs("a", "b"))
	require.NoError(t, r.Upsert(domain.Record{ID: "new", Title: "fresh"}))
	assert.Equal(t, []string{"new", "a", "b"}, domain.IDs(r.View()))
	assert.True(t, r.Known("new"))

	// Upserting an existing record replaces its content.
	require.NoError(t, r.Upsert(domain.Record{ID: "b", Title: "renamed"}))
	view := r.View()
	assert.Equal(t, []string{"b", "new", "a"}, domain.IDs(view))
	assert.Equal(t, "renamed", view[0].Title)
}

func TestInit_AfterClose(t *testing.T) {
	r := New(newMemStore(), Options{Namespace: "x"}, nil)
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Init(), ErrClosed)
	assert.NoError(t, r.Close())
}

func TestNamespacesAreIsolated(t *testing.T) {
	kv := newMemStore()
	repos := open(t, kv, Options{Namespace: "repos"})
	links := open(t, kv, Options{Namespace: "links"})

	repos.Reconcile(recs("r1"))
	repos.Touch("r1")
	require.NoError(t, repos.Flush(context.Background()))

	assert.Empty(t, links.Load())
	assert.Equal(t, "repos", repos.Namespace())
}

func TestConcurrentMutations(t *testing.T) {
	kv := newMemStore()
	r := open(t, kv, Options{Limit: 10})
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	r.Reconcile(recs(ids...))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := ids[(w*7+i)%len(ids)]
				if i%5 == 0 {
					r.Remove(id)
					continue
				}
				r.Touch(id)
				_ = r.View()
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, r.Flush(context.Background()))

	// The last write carries the final in-memory state.
	want := r.Order()
	restarted := open(t, kv, Options{Namespace: "test", Limit: 10})
	assert.Equal(t, want, restarted.Order())
	assert.LessOrEqual(t, len(want), 10)
}

func TestWithBoltStore(t *testing.T) {
	dir := t.TempDir()

	kv, err := store.Open(dir)
	require.NoError(t, err)
	r := New(kv, Options{Namespace: "menubar", Limit: 7}, nil)
	require.NoError(t, r.Init())
	r.Reconcile(recs("x", "y", "z"))
	r.Touch("z")
	require.NoError(t, r.Close())
	require.NoError(t, kv.Close())

	kv, err = store.Open(dir)
	require.NoError(t, err)
	defer kv.Close()
	r = New(kv, Options{Namespace: "menubar", Limit: 7}, nil)
	require.NoError(t, r.Init())
	defer r.Close()

	assert.Equal(t, []string{"z", "x", "y"}, domain.IDs(r.Reconcile(recs("x", "y", "z"))))
}

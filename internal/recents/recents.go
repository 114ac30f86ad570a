// Package recents keeps a most-recently-used ordering of externally sourced
// records in a key-value store and merges it with fresh canonical lists.
//
// The canonical source decides which records exist and what they contain;
// the local index only decides their order.
package recents

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/mmcdole/recents/internal/domain"
)

// KeyPrefix is prepended to the namespace to form the storage key.
const KeyPrefix = "recents:"

// ErrClosed is returned by Init after Close.
var ErrClosed = errors.New("recents: reconciler closed")

// Key returns the storage key for a namespace.
func Key(namespace string) string {
	return KeyPrefix + namespace
}

// Options configures a Reconciler.
type Options struct {
	// Namespace selects the storage key; one namespace per feature.
	Namespace string

	// Limit caps the recency index. Zero means unbounded.
	Limit int

	// KeepDuplicates makes Touch prepend without dropping earlier
	// occurrences of the same ID. Ranking uses the first occurrence.
	KeepDuplicates bool

	// PruneMissing drops remembered IDs that a reconcile did not return.
	PruneMissing bool

	Observer domain.PersistObserver
	Now      func() time.Time
}

// Reconciler owns one namespace of recency state. All methods are safe for
// concurrent use. Mutations apply to memory immediately and are written to
// the store in the background; every write carries the full state, so the
// newest write always wins.
type Reconciler struct {
	store    domain.KVStore
	opts     Options
	key      string
	logger   *slog.Logger
	observer domain.PersistObserver
	now      func() time.Time

	mu         sync.Mutex
	entries    []domain.Entry // most recent first
	canonical  []domain.Record
	byID       map[string]domain.Record
	reconciled bool
	gen        uint64 // bumped on every change that needs writing
	savedGen   uint64 // gen of the last successful write
	started    bool
	closed     bool

	writeSem chan struct{} // serialises writes
	kick     chan struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates a Reconciler for one namespace. Call Init before use and
// Close when done.
func New(store domain.KVStore, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	observer := opts.Observer
	if observer == nil {
		observer = domain.NoOpObserver{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		store:    store,
		opts:     opts,
		key:      Key(opts.Namespace),
		logger:   logger.With("namespace", opts.Namespace),
		observer: observer,
		now:      now,
		byID:     make(map[string]domain.Record),
		writeSem: make(chan struct{}, 1),
		kick:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
}

// Namespace returns the namespace this reconciler owns.
func (r *Reconciler) Namespace() string {
	return r.opts.Namespace
}

// Init loads persisted state and starts the background writer.
// Calling it again is a no-op.
func (r *Reconciler) Init() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	r.Load()

	r.wg.Add(1)
	go r.run()
	return nil
}

// Close stops the background writer and flushes pending changes.
// The in-memory state stays readable afterwards.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.quit)
	r.wg.Wait()
	return r.Flush(context.Background())
}

// Load replaces the in-memory recency index with the persisted one and
// returns its records. A missing, unreadable, or corrupt blob yields an
// empty list; the problem is logged, never returned. Load does not write.
func (r *Reconciler) Load() []domain.Record {
	entries := r.read()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	r.savedGen = r.gen
	return recordsOf(uniqueEntries(entries))
}

func (r *Reconciler) read() []domain.Entry {
	raw, ok, err := r.store.Get(r.key)
	if err != nil {
		r.logger.Warn("failed to read recents, starting empty", "error", err)
		return nil
	}
	if !ok {
		r.logger.Debug("no recents stored yet")
		return nil
	}

	entries, skipped, err := decodeEntries(raw, r.opts.KeepDuplicates, r.opts.Limit)
	if err != nil {
		r.logger.Warn("discarding corrupt recents", "error", err, "bytes", len(raw))
		return nil
	}
	if skipped > 0 {
		r.logger.Warn("skipped malformed recents entries", "skipped", skipped)
	}
	r.logger.Debug("loaded recents", "count", len(entries))
	return entries
}

// Touch moves id to the front of the recency index. It returns false, and
// changes nothing, when id is not a known record. The write happens in the
// background.
func (r *Reconciler) Touch(id string) bool {
	r.mu.Lock()
	rec, ok := r.lookupLocked(id)
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("ignoring touch of unknown record", "id", id)
		return false
	}
	r.touchLocked(rec)
	r.mu.Unlock()

	r.schedule()
	return true
}

// Upsert adds rec to the known records, replacing any previous content for
// its ID, and touches it.
func (r *Reconciler) Upsert(rec domain.Record) error {
	if rec.ID == "" {
		return domain.ErrInvalidRecord
	}
	rec = rec.Clone()

	r.mu.Lock()
	if r.reconciled {
		if _, ok := r.byID[rec.ID]; ok {
			for i := range r.canonical {
				if r.canonical[i].ID == rec.ID {
					r.canonical[i] = rec
					break
				}
			}
		} else {
			r.canonical = append(r.canonical, rec)
		}
		r.byID[rec.ID] = rec
	}
	r.touchLocked(rec)
	r.mu.Unlock()

	r.schedule()
	return nil
}

// touchLocked prepends rec, carrying over its touch count. Caller holds mu.
func (r *Reconciler) touchLocked(rec domain.Record) {
	touches := 0
	kept := r.entries[:0:0]
	for _, e := range r.entries {
		if e.Record.ID == rec.ID {
			if touches == 0 {
				touches = e.Touches
			}
			if !r.opts.KeepDuplicates {
				continue
			}
		}
		kept = append(kept, e)
	}

	entry := domain.Entry{Record: rec.Clone(), TouchedAt: r.now(), Touches: touches + 1}
	entries := make([]domain.Entry, 0, len(kept)+1)
	entries = append(entries, entry)
	entries = append(entries, kept...)
	if r.opts.Limit > 0 && len(entries) > r.opts.Limit {
		entries = entries[:r.opts.Limit]
	}
	r.entries = entries
	r.gen++
}

// Remove forgets id everywhere: the recency index, its cached copy, and the
// last canonical list. Removing an absent id is a no-op that returns false.
func (r *Reconciler) Remove(id string) bool {
	r.mu.Lock()
	changed := false

	kept := r.entries[:0:0]
	for _, e := range r.entries {
		if e.Record.ID == id {
			changed = true
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept

	if _, ok := r.byID[id]; ok {
		delete(r.byID, id)
		canonical := r.canonical[:0:0]
		for _, rec := range r.canonical {
			if rec.ID != id {
				canonical = append(canonical, rec)
			}
		}
		r.canonical = canonical
		changed = true
	}

	if changed {
		r.gen++
	}
	r.mu.Unlock()

	if changed {
		r.schedule()
	}
	return changed
}

// Reconcile merges a freshly fetched canonical list with the recency index
// and returns the display order: remembered records first, most recent
// first, then everything else in canonical order. Cached copies of
// remembered records are refreshed from canonical content.
func (r *Reconciler) Reconcile(canonical []domain.Record) []domain.Record {
	clean, byID := dedupCanonical(canonical)

	r.mu.Lock()
	r.canonical = clean
	r.byID = byID
	r.reconciled = true

	changed := false
	kept := r.entries[:0:0]
	for _, e := range r.entries {
		rec, ok := byID[e.Record.ID]
		switch {
		case ok:
			if !sameRecord(e.Record, rec) {
				e.Record = rec.Clone()
				changed = true
			}
		case r.opts.PruneMissing:
			changed = true
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	if changed {
		r.gen++
	}

	out := cloneRecords(Merge(r.canonical, entryIDs(r.entries)))
	r.mu.Unlock()

	if changed {
		r.schedule()
	}
	r.logger.Debug("reconciled", "canonical", len(clean), "ranked", len(kept))
	return out
}

// View returns the current display list: the last reconcile result kept up
// to date by later mutations, or the cached records if nothing has been
// reconciled yet.
func (r *Reconciler) View() []domain.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.reconciled {
		return recordsOf(uniqueEntries(r.entries))
	}
	return cloneRecords(Merge(r.canonical, entryIDs(r.entries)))
}

// Order returns the recency index, most recent first.
func (r *Reconciler) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return entryIDs(r.entries)
}

// Entries returns a copy of the recency index with cached records.
func (r *Reconciler) Entries() []domain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneEntries(r.entries)
}

// Known reports whether id can be touched.
func (r *Reconciler) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lookupLocked(id)
	return ok
}

// Lookup returns the record Touch would accept for id.
func (r *Reconciler) Lookup(id string) (domain.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.lookupLocked(id)
	return rec.Clone(), ok
}

func (r *Reconciler) lookupLocked(id string) (domain.Record, bool) {
	if id == "" {
		return domain.Record{}, false
	}
	if rec, ok := r.byID[id]; ok {
		return rec, true
	}
	for _, e := range r.entries {
		if e.Record.ID == id {
			return e.Record, true
		}
	}
	return domain.Record{}, false
}

// Persist writes the full current state now. Failures are logged, reported
// to the observer, and returned; memory stays authoritative either way.
func (r *Reconciler) Persist(ctx context.Context) error {
	return r.persist(ctx, true)
}

// Flush writes only if something changed since the last successful write.
func (r *Reconciler) Flush(ctx context.Context) error {
	return r.persist(ctx, false)
}

func (r *Reconciler) persist(ctx context.Context, force bool) error {
	select {
	case r.writeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.writeSem }()

	// Snapshot under the write slot so a later write never carries older state.
	r.mu.Lock()
	gen := r.gen
	if !force && gen == r.savedGen {
		r.mu.Unlock()
		return nil
	}
	entries := cloneEntries(r.entries)
	r.mu.Unlock()

	data, err := encodeEntries(entries)
	if err == nil {
		err = r.store.Set(r.key, data)
	}

	if err != nil {
		r.logger.Error("failed to persist recents", "error", err, "count", len(entries))
	} else {
		r.mu.Lock()
		if gen > r.savedGen {
			r.savedGen = gen
		}
		r.mu.Unlock()
		r.logger.Debug("persisted recents", "count", len(entries))
	}

	r.observer.OnPersist(domain.PersistResult{
		Namespace: r.opts.Namespace,
		Entries:   len(entries),
		Err:       err,
	})
	return err
}

// schedule asks the writer for a flush; pending requests coalesce.
func (r *Reconciler) schedule() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Reconciler) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case <-r.kick:
			_ = r.Flush(context.Background())
		}
	}
}

// --- helpers ---

func sameRecord(a, b domain.Record) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Subtitle == b.Subtitle &&
		a.URL == b.URL &&
		maps.Equal(a.Fields, b.Fields)
}

func entryIDs(entries []domain.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Record.ID
	}
	return ids
}

// uniqueEntries keeps the first occurrence of each ID.
func uniqueEntries(entries []domain.Entry) []domain.Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Record.ID] {
			continue
		}
		seen[e.Record.ID] = true
		out = append(out, e)
	}
	return out
}

func recordsOf(entries []domain.Entry) []domain.Record {
	out := make([]domain.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Record.Clone()
	}
	return out
}

func cloneRecords(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}

func cloneEntries(entries []domain.Entry) []domain.Entry {
	out := make([]domain.Entry, len(entries))
	for i, e := range entries {
		e.Record = e.Record.Clone()
		out[i] = e
	}
	return out
}

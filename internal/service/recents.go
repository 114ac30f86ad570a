package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmcdole/recents/internal/domain"
	"github.com/mmcdole/recents/internal/recents"
)

// opener abstracts URL launching (consumer-defined interface)
type opener interface {
	Open(url string) error
}

// RecentsService orchestrates a canonical source and the recency index of
// one namespace.
type RecentsService struct {
	source  domain.Source // nil when the namespace has no source
	recents *recents.Reconciler
	opener  opener
	logger  *slog.Logger
}

// NewRecentsService creates a service around an initialised reconciler.
// source and opener may be nil.
func NewRecentsService(
	source domain.Source,
	rec *recents.Reconciler,
	opener opener,
	logger *slog.Logger,
) *RecentsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecentsService{
		source:  source,
		recents: rec,
		opener:  opener,
		logger:  logger.With("namespace", rec.Namespace()),
	}
}

// Namespace returns the namespace served.
func (s *RecentsService) Namespace() string {
	return s.recents.Namespace()
}

// HasSource reports whether Refresh can fetch anything.
func (s *RecentsService) HasSource() bool {
	return s.source != nil
}

// Cached returns what can be shown without touching the network.
func (s *RecentsService) Cached() []domain.Record {
	return s.recents.View()
}

// Refresh fetches the canonical list and reconciles it with the recency
// index. On failure the cached view is returned together with the error,
// so callers can keep showing it.
func (s *RecentsService) Refresh(ctx context.Context) ([]domain.Record, error) {
	if s.source == nil {
		return s.recents.View(), domain.ErrNoSource
	}

	records, err := s.source.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("failed to fetch canonical records", "error", err)
		}
		return s.recents.View(), err
	}

	view := s.recents.Reconcile(records)
	s.logger.Debug("refreshed", "fetched", len(records), "shown", len(view))
	return view, nil
}

// Open marks id as just used and returns its record.
func (s *RecentsService) Open(id string) (domain.Record, error) {
	if !s.recents.Touch(id) {
		return domain.Record{}, domain.ErrNotFound
	}
	rec, _ := s.recents.Lookup(id)
	s.logger.Info("opened record", "id", id)
	return rec, nil
}

// Launch opens id like Open and then hands its URL to the opener.
func (s *RecentsService) Launch(id string) (domain.Record, error) {
	rec, err := s.Open(id)
	if err != nil {
		return rec, err
	}
	return rec, s.OpenURL(rec)
}

// OpenURL hands rec's URL to the opener without touching it.
func (s *RecentsService) OpenURL(rec domain.Record) error {
	if rec.URL == "" {
		return domain.ErrNoURL
	}
	if s.opener == nil {
		return errors.New("no opener configured")
	}
	if err := s.opener.Open(rec.URL); err != nil {
		s.logger.Error("failed to open url", "error", err, "id", rec.ID, "url", rec.URL)
		return err
	}
	return nil
}

// Add records rec as just used, whether or not the source knows it yet.
func (s *RecentsService) Add(rec domain.Record) error {
	if err := s.recents.Upsert(rec); err != nil {
		return err
	}
	s.logger.Info("added record", "id", rec.ID)
	return nil
}

// Forget removes id from the recency index and the cached list.
// It reports whether anything was removed.
func (s *RecentsService) Forget(id string) bool {
	removed := s.recents.Remove(id)
	if removed {
		s.logger.Info("forgot record", "id", id)
	}
	return removed
}

// Entries exposes the recency index with touch metadata.
func (s *RecentsService) Entries() []domain.Entry {
	return s.recents.Entries()
}

// Close flushes pending writes and stops the background writer.
func (s *RecentsService) Close() error {
	return s.recents.Close()
}

package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mmcdole/recents/internal/config"
	"github.com/mmcdole/recents/internal/domain"
)

// FileSource reads the canonical list from a local JSON file.
type FileSource struct {
	path      string
	listField string
	mapper    Mapper
	logger    *slog.Logger
}

// NewFileSource creates a source reading cfg.Path.
func NewFileSource(cfg config.SourceConfig, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:      cfg.Path,
		listField: cfg.ListField,
		mapper:    NewMapper(cfg.Fields),
		logger:    logger,
	}
}

func (s *FileSource) Fetch(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.path
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}

	p, err := decodePage(body, s.listField, "")
	if err != nil {
		s.logger.Error("failed to parse source file", "path", path, "error", err)
		return nil, err
	}

	records, skipped := s.mapper.Map(p.objects)
	if skipped > 0 {
		s.logger.Warn("skipped records without id", "path", path, "skipped", skipped)
	}
	s.logger.Debug("read source file", "path", path, "count", len(records))
	return records, nil
}

package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/recents/internal/config"
	"github.com/mmcdole/recents/internal/domain"
)

// New creates the Source described by cfg.
// This factory function abstracts away the specific backend implementation.
func New(cfg config.SourceConfig, logger *slog.Logger) (domain.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case config.SourceTypeHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("http source requires a url")
		}
		return NewHTTPSource(cfg, logger), nil

	case config.SourceTypeFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file source requires a path")
		}
		return NewFileSource(cfg, logger), nil

	case "":
		return nil, domain.ErrNoSource

	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}

const defaultPageSize = 50

// fetchAll is a generic pagination helper. total < 0 means the page did not
// report one; paging then stops at the first short or empty page.
func fetchAll[T any](
	ctx context.Context,
	fetch func(ctx context.Context, offset, limit int) ([]T, int, error),
	chunkSize int,
) ([]T, error) {
	if chunkSize <= 0 {
		chunkSize = defaultPageSize
	}

	var all []T
	offset := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		items, total, err := fetch(ctx, offset, chunkSize)
		if err != nil {
			return nil, err
		}

		all = append(all, items...)

		if len(items) == 0 || (total >= 0 && len(all) >= total) || (total < 0 && len(items) < chunkSize) {
			break
		}
		offset += chunkSize
	}

	return all, nil
}

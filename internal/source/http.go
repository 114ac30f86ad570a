package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/recents/internal/config"
	"github.com/mmcdole/recents/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "recents/1.0"
)

// HTTPSource fetches the canonical list from a JSON endpoint.
type HTTPSource struct {
	cfg        config.SourceConfig
	mapper     Mapper
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSource creates a source for cfg.URL
func NewHTTPSource(cfg config.SourceConfig, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if cfg.OffsetParam == "" {
		cfg.OffsetParam = "offset"
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = "limit"
	}
	return &HTTPSource{
		cfg:    cfg,
		mapper: NewMapper(cfg.Fields),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch returns every record, following pages when page_size is set.
func (s *HTTPSource) Fetch(ctx context.Context) ([]domain.Record, error) {
	var objects []map[string]any

	if s.cfg.PageSize > 0 {
		all, err := fetchAll(ctx, s.fetchPage, s.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		objects = all
	} else {
		body, err := s.doRequest(ctx, nil)
		if err != nil {
			return nil, err
		}
		p, err := decodePage(body, s.cfg.ListField, s.cfg.TotalField)
		if err != nil {
			s.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
			return nil, err
		}
		objects = p.objects
	}

	records, skipped := s.mapper.Map(objects)
	if skipped > 0 {
		s.logger.Warn("skipped records without id", "skipped", skipped)
	}
	s.logger.Debug("fetched source", "url", s.cfg.URL, "count", len(records))
	return records, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, offset, limit int) ([]map[string]any, int, error) {
	query := url.Values{}
	query.Set(s.cfg.OffsetParam, strconv.Itoa(offset))
	query.Set(s.cfg.LimitParam, strconv.Itoa(limit))

	body, err := s.doRequest(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	p, err := decodePage(body, s.cfg.ListField, s.cfg.TotalField)
	if err != nil {
		s.logger.Error("JSON parse error", "error", err, "bodyLen", len(body), "offset", offset)
		return nil, 0, err
	}
	return p.objects, p.total, nil
}

// doRequest performs an authenticated GET, merging query into the URL's own.
func (s *HTTPSource) doRequest(ctx context.Context, query url.Values) ([]byte, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}
	if query != nil {
		q := u.Query()
		for k, vs := range query {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}
	reqURL := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.cfg.Token != "" {
		if s.cfg.TokenHeader == "" || strings.EqualFold(s.cfg.TokenHeader, "Authorization") {
			req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
		} else {
			req.Header.Set(s.cfg.TokenHeader, s.cfg.Token)
		}
	}

	s.logger.Debug("source request", "url", reqURL)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.logger.Error("source request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domain.ErrAuthFailed
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Error("source request error", "status", resp.StatusCode, "body", truncate(string(body), 512))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

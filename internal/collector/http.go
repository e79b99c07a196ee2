package collector

import (
	"context"
	"log/slog"

	"pubdigest/internal/domain"
)

// HTTP fetches a JSON array of records from a URL.
type HTTP struct {
	url     string
	fetcher *fetcher
	logger  *slog.Logger
}

func newHTTP(url string, f *fetcher, logger *slog.Logger) *HTTP {
	return &HTTP{url: url, fetcher: f, logger: logger}
}

func (h *HTTP) Collect(ctx context.Context) ([]domain.RawRecord, error) {
	body, err := h.fetcher.get(ctx, h.url, "application/json")
	if err != nil {
		return nil, err
	}

	records, err := Parse(body)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("fetched records", "url", h.url, "count", len(records))
	return records, nil
}

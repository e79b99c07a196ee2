// Package collector produces raw publication records for a source, either
// by running an external scraper or by fetching and mapping a remote
// document.
package collector

import (
	"fmt"
	"log/slog"

	"pubdigest/internal/config"
	"pubdigest/internal/domain"
	"pubdigest/internal/service"
)

// Factory builds the collector described by a source's CollectorSpec.
type Factory struct {
	fetcher *fetcher
	logger  *slog.Logger
}

var _ service.CollectorFactory = (*Factory)(nil)

func NewFactory(cfg config.HTTPClientConfig, logger *slog.Logger) *Factory {
	return &Factory{
		fetcher: newFetcher(cfg, logger),
		logger:  logger,
	}
}

func (f *Factory) For(src domain.Source) (service.Collector, error) {
	logger := f.logger.With("source", src.ID, "collector", src.Collector.Kind)

	switch src.Collector.Kind {
	case domain.CollectorCommand:
		c, err := NewCommand(src.Collector.Command, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case domain.CollectorHTTP:
		return newHTTP(src.Collector.URL, f.fetcher, logger), nil
	case domain.CollectorFeed:
		return newFeed(src.Collector.URL, f.fetcher, logger), nil
	case domain.CollectorHTML:
		c, err := newHTML(src.Collector.URL, src.Collector.Selectors, f.fetcher, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("source %d: unknown collector kind %q", src.ID, src.Collector.Kind)
	}
}

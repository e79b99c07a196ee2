// Package transport delivers rendered digests to subscribers.
package transport

import (
	"context"
	"fmt"
	"log/slog"

	"pubdigest/internal/config"
	"pubdigest/internal/domain"
)

type Transport interface {
	Deliver(ctx context.Context, recipient domain.Subscriber, digest *domain.Digest) error
	Close() error
}

// New builds the transport selected by cfg.Kind.
func New(cfg config.TransportConfig, logger *slog.Logger) (Transport, error) {
	logger = logger.With("transport", cfg.Kind)

	switch cfg.Kind {
	case "smtp":
		return NewSMTP(cfg.SMTP, cfg.Retry, logger), nil
	case "rabbitmq":
		return NewRabbitMQ(cfg.RabbitMQ, logger)
	case "log":
		return NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Kind)
	}
}

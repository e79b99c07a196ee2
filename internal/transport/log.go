package transport

import (
	"context"
	"log/slog"

	"pubdigest/internal/domain"
)

// Log writes digests to the logger instead of sending them. Used for dry
// runs.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Deliver(ctx context.Context, recipient domain.Subscriber, digest *domain.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Info("digest",
		"to", recipient.Email,
		"subject", digest.Subject,
		"body", digest.PlainBody,
	)
	return nil
}

func (l *Log) Close() error {
	return nil
}

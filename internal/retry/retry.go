// Package retry runs operations with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pubdigest/internal/config"
)

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// exponential doubles the wait after every failed attempt, without jitter,
// up to MaxBackoff. A zero MaxBackoff leaves the wait uncapped.
func (p Policy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.MaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// used up, or ctx is done.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, fn func(ctx context.Context) error) error {
	var (
		attempt   int
		permanent bool
	)

	operation := func() error {
		attempt++
		err := fn(ctx)

		var perm *backoff.PermanentError
		permanent = errors.As(err, &perm)
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("attempt failed, retrying",
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.exponential(), uint64(p.attempts()-1)), ctx)

	err := backoff.RetryNotify(operation, b, notify)
	if err == nil || permanent || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("after %d attempts: %w", attempt, err)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"pubdigest/internal/config"
	"pubdigest/internal/domain"
)

// DispatchService sends each source's not-yet-notified publications to its
// subscribers and moves the watermark once every delivery succeeded.
type DispatchService struct {
	publications PublicationStore
	sources      SourceStore
	subscribers  SubscriberStore
	renderer     Renderer
	transport    Transport
	limiter      *rate.Limiter
	logger       *slog.Logger
	config       config.DispatchConfig
}

func NewDispatchService(
	publications PublicationStore,
	sources SourceStore,
	subscribers SubscriberStore,
	renderer Renderer,
	transport Transport,
	logger *slog.Logger,
	cfg config.DispatchConfig,
) *DispatchService {
	s := &DispatchService{
		publications: publications,
		sources:      sources,
		subscribers:  subscribers,
		renderer:     renderer,
		transport:    transport,
		logger:       logger,
		config:       cfg,
	}
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return s
}

// Dispatch delivers one digest per subscriber of source covering every
// publication past its watermark. With nothing new it returns a result with
// Sent false and touches neither the renderer nor the transport.
//
// When some deliveries fail the remaining subscribers are still served, the
// watermark stays where it was and the returned error is a
// *domain.DeliveryError next to a non-nil result.
func (s *DispatchService) Dispatch(ctx context.Context, source domain.Source) (*domain.DispatchResult, error) {
	logger := s.logger.With("source", source.ID)

	watermark, err := s.sources.Watermark(ctx, source.ID)
	if err != nil {
		return nil, storageErr("read watermark", err)
	}

	pubs, err := s.publications.ListAfter(ctx, source.ID, watermark)
	if err != nil {
		return nil, storageErr("list new publications", err)
	}

	result := &domain.DispatchResult{Count: len(pubs), Watermark: watermark}
	if len(pubs) == 0 {
		logger.Info("no new publications", "watermark", watermark)
		return result, nil
	}

	digest, err := s.renderer.Render(source.Name, pubs)
	if err != nil {
		return nil, fmt.Errorf("render digest: %w", err)
	}

	subs, err := s.subscribers.ListBySource(ctx, source.ID)
	if err != nil {
		return nil, storageErr("list subscribers", err)
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("source %d: %w", source.ID, domain.ErrNoSubscribers)
	}

	outcomes := make([]domain.DeliveryOutcome, 0, len(subs))
	for _, sub := range subs {
		err := s.deliver(ctx, sub, digest)
		if err != nil {
			result.Failed++
			logger.Error("delivery failed", "recipient", sub.Email, "error", err)
		} else {
			result.Delivered++
			logger.Debug("digest delivered", "recipient", sub.Email)
		}
		outcomes = append(outcomes, domain.DeliveryOutcome{Recipient: sub, Err: err})
	}
	result.Sent = result.Delivered > 0

	if !domain.ShouldAdvance(outcomes) {
		logger.Warn("watermark not advanced",
			"watermark", watermark,
			"delivered", result.Delivered,
			"failed", result.Failed,
		)
		return result, domain.NewDeliveryError(source.ID, outcomes)
	}

	lastID := domain.MaxID(pubs)
	if err := s.sources.AdvanceWatermark(ctx, source.ID, lastID); err != nil {
		return result, storageErr("advance watermark", err)
	}
	result.Watermark = lastID

	logger.Info("digest dispatched",
		"publications", result.Count,
		"recipients", result.Delivered,
		"watermark", lastID,
	)

	return result, nil
}

func (s *DispatchService) deliver(ctx context.Context, sub domain.Subscriber, digest *domain.Digest) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	deliverCtx := ctx
	if s.config.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		deliverCtx, cancel = context.WithTimeout(ctx, s.config.DeliveryTimeout)
		defer cancel()
	}

	return s.transport.Deliver(deliverCtx, sub, digest)
}

// storageErr marks err as a storage failure unless it already carries a
// domain classification.
func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrUnknownSource) || errors.Is(err, domain.ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

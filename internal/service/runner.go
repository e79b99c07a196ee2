package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pubdigest/internal/config"
	"pubdigest/internal/domain"
)

// Runner drives one collect, ingest and dispatch cycle per source.
type Runner struct {
	registry    SourceRegistry
	collectors  CollectorFactory
	ingest      *IngestService
	dispatch    *DispatchService
	sources     SourceStore
	subscribers SubscriberStore
	txManager   TransactionManager
	logger      *slog.Logger

	defaultSubscriber domain.Subscriber
	collectorTimeout  time.Duration
}

func NewRunner(
	registry SourceRegistry,
	collectors CollectorFactory,
	ingest *IngestService,
	dispatch *DispatchService,
	sources SourceStore,
	subscribers SubscriberStore,
	txManager TransactionManager,
	logger *slog.Logger,
	defaultSubscriber config.SubscriberConfig,
	cfg config.SchedulerConfig,
) *Runner {
	return &Runner{
		registry:    registry,
		collectors:  collectors,
		ingest:      ingest,
		dispatch:    dispatch,
		sources:     sources,
		subscribers: subscribers,
		txManager:   txManager,
		logger:      logger,
		defaultSubscriber: domain.Subscriber{
			Name:  defaultSubscriber.Name,
			Email: defaultSubscriber.Email,
		},
		collectorTimeout: cfg.CollectorTimeout,
	}
}

// Bootstrap makes sure every registered source has its row, its configured
// subscribers, and at least the default subscriber. It must complete before
// the first Run.
func (r *Runner) Bootstrap(ctx context.Context) error {
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, src := range r.registry.All() {
			if err := r.sources.EnsureSource(txCtx, src.ID); err != nil {
				return fmt.Errorf("ensure source %d: %w", src.ID, err)
			}

			for _, sub := range src.Subscribers {
				sub.SourceID = src.ID
				if err := r.subscribers.Add(txCtx, sub); err != nil {
					return fmt.Errorf("add subscriber %s to source %d: %w", sub.Email, src.ID, err)
				}
			}

			seeded, err := r.subscribers.EnsureDefault(txCtx, src.ID, r.defaultSubscriber)
			if err != nil {
				return fmt.Errorf("seed default subscriber for source %d: %w", src.ID, err)
			}
			if seeded {
				r.logger.Info("seeded default subscriber", "source", src.ID, "email", r.defaultSubscriber.Email)
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("bootstrap", err)
	}
	return nil
}

// Run executes the pipeline for sourceID. Ingestion failures abort the run
// before anything is dispatched. A partial delivery failure returns the
// stats together with the *domain.DeliveryError.
func (r *Runner) Run(ctx context.Context, sourceID int64) (*domain.RunStats, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID, "source", sourceID)

	src, err := r.registry.Lookup(sourceID)
	if err != nil {
		return nil, err
	}

	stats := &domain.RunStats{RunID: runID, SourceID: sourceID}

	logger.Info("starting run", "source_name", src.Name, "collector", src.Collector.Kind)

	records, err := r.collect(ctx, src)
	if err != nil {
		return stats, fmt.Errorf("collect: %w", err)
	}
	logger.Info("collected records", "count", len(records))

	stats.Ingest, err = r.ingest.Ingest(ctx, sourceID, records)
	if err != nil {
		return stats, fmt.Errorf("ingest: %w", err)
	}

	stats.Dispatch, err = r.dispatch.Dispatch(ctx, src)
	stats.Duration = time.Since(startTime)
	if err != nil {
		return stats, fmt.Errorf("dispatch: %w", err)
	}

	logger.Info("run completed",
		"new", stats.Ingest.New,
		"duplicates", stats.Ingest.Duplicates,
		"sent", stats.Dispatch.Sent,
		"watermark", stats.Dispatch.Watermark,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (r *Runner) collect(ctx context.Context, src domain.Source) ([]domain.RawRecord, error) {
	collector, err := r.collectors.For(src)
	if err != nil {
		return nil, err
	}

	timeout := src.Collector.Timeout
	if timeout <= 0 {
		timeout = r.collectorTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return collector.Collect(ctx)
}

// Package scheduler runs the pipeline of every source on its cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pubdigest/internal/config"
	"pubdigest/internal/domain"
)

type Runner interface {
	Run(ctx context.Context, sourceID int64) (*domain.RunStats, error)
}

// Scheduler registers one cron job per source. A job still running when its
// next tick arrives is skipped, so a source never runs twice at once.
type Scheduler struct {
	runner  Runner
	sources []domain.Source
	parser  cron.Parser
	logger  *slog.Logger
	config  config.SchedulerConfig
}

func NewScheduler(runner Runner, sources []domain.Source, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:  runner,
		sources: sources,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:  logger,
		config:  cfg,
	}
}

// Start blocks until ctx is done, then waits for running jobs to finish,
// including the ones fired at startup.
func (s *Scheduler) Start(ctx context.Context) error {
	cronLogger := slogAdapter{logger: s.logger}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	ids := make([]cron.EntryID, 0, len(s.sources))
	for _, src := range s.sources {
		spec := src.Schedule
		if spec == "" {
			spec = s.config.DefaultSchedule
		}

		sourceID := src.ID
		id, err := c.AddFunc(spec, func() { s.runSource(ctx, sourceID) })
		if err != nil {
			return fmt.Errorf("schedule source %d (%q): %w", src.ID, spec, err)
		}
		ids = append(ids, id)

		s.logger.Info("source scheduled", "source", src.ID, "schedule", spec)
	}

	c.Start()
	s.logger.Info("scheduler started", "sources", len(ids))

	// Jobs started here are not tracked by cron's Stop.
	var startup sync.WaitGroup
	if s.config.RunOnStart {
		for _, id := range ids {
			startup.Go(c.Entry(id).WrappedJob.Run)
		}
	}

	<-ctx.Done()

	<-c.Stop().Done()
	startup.Wait()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runSource(ctx context.Context, sourceID int64) {
	if ctx.Err() != nil {
		return
	}

	runCtx := ctx
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	if _, err := s.runner.Run(runCtx, sourceID); err != nil {
		s.logger.Error("run failed", "source", sourceID, "error", err)
	}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, normalize(keysAndValues)...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error("cron: "+msg, append(normalize(keysAndValues), "error", err)...)
}

// normalize formats time values the way the rest of the logs do.
func normalize(keysAndValues []any) []any {
	out := make([]any, len(keysAndValues))
	for i, v := range keysAndValues {
		if t, ok := v.(time.Time); ok {
			v = t.Format(time.RFC3339)
		}
		out[i] = v
	}
	return out
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"pubdigest/internal/collector"
	"pubdigest/internal/config"
	"pubdigest/internal/registry"
	"pubdigest/internal/render"
	"pubdigest/internal/service"
	"pubdigest/internal/storage/sqlstore"
	"pubdigest/internal/transport"
)

// app holds everything a command needs, wired from one config file.
type app struct {
	config    *config.Config
	logger    *slog.Logger
	db        *sqlx.DB
	transport transport.Transport
	registry  *registry.Registry
	runner    *service.Runner
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger = setupLogger(cfg.LogLevel)

	reg, err := registry.FromConfig(cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	if err := sqlstore.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	renderer, err := render.New()
	if err != nil {
		db.Close()
		return nil, err
	}

	tr, err := transport.New(cfg.Transport, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize stores
	publications := sqlstore.NewPublicationStore(db)
	sources := sqlstore.NewSourceStore(db)
	subscribers := sqlstore.NewSubscriberStore(db)
	txManager := sqlstore.NewTransactionManager(db)

	collectors := collector.NewFactory(cfg.HTTP, logger)

	ingest := service.NewIngestService(publications, txManager, logger)
	dispatch := service.NewDispatchService(
		publications,
		sources,
		subscribers,
		renderer,
		tr,
		logger,
		cfg.Dispatch,
	)

	runner := service.NewRunner(
		reg,
		collectors,
		ingest,
		dispatch,
		sources,
		subscribers,
		txManager,
		logger,
		cfg.DefaultSubscriber,
		cfg.Scheduler,
	)

	return &app{
		config:    cfg,
		logger:    logger,
		db:        db,
		transport: tr,
		registry:  reg,
		runner:    runner,
	}, nil
}

func (a *app) Close() {
	if err := a.transport.Close(); err != nil {
		a.logger.Warn("failed to close transport", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

// loadRegistry reads only the source list, without touching the database.
func loadRegistry(configPath string) (*registry.Registry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return registry.FromConfig(cfg.Sources)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"pubdigest/internal/registry"
	"pubdigest/internal/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "pubdigest <source-id>",
		Short: "Ingest a source's publications and mail the new ones",
		Long: `Run the pipeline once for one source: collect the scraper output,
store the publications that are not already known and send a digest of
everything past the source's watermark to its subscribers.

Example:
  pubdigest --config config.yaml 3`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError(cmd, configPath, len(args))
			}
			sourceID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id %q: %w", args[0], err)
			}
			return runOnce(cmd.Context(), configPath, sourceID)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newSourcesCmd(&configPath))

	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Run every configured source on its schedule",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.runner.Bootstrap(ctx); err != nil {
				return err
			}

			sources := a.registry.All()
			a.logger.Info("starting pubdigest",
				"sources", len(sources),
				"default_schedule", a.config.Scheduler.DefaultSchedule,
				"transport", a.config.Transport.Kind,
			)

			sched := scheduler.NewScheduler(a.runner, sources, a.config.Scheduler, a.logger)
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}

			a.logger.Info("shutdown complete")
			return nil
		},
	}
}

func newSourcesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "sources",
		Short:         "List the configured sources",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(*configPath)
			if err != nil {
				return err
			}

			printSources(cmd.OutOrStdout(), reg)
			return nil
		},
	}
}

// usageError prints the usage and, when the config can be read, the
// sources to choose from.
func usageError(cmd *cobra.Command, configPath string, got int) error {
	_ = cmd.Usage()

	if reg, err := loadRegistry(configPath); err == nil {
		out := cmd.OutOrStderr()
		fmt.Fprintln(out, "\nSources:")
		printSources(out, reg)
	}

	return fmt.Errorf("expected exactly one source id, got %d arguments", got)
}

func printSources(out io.Writer, reg *registry.Registry) {
	for _, src := range reg.All() {
		target := src.Collector.Command
		if target == "" {
			target = src.Collector.URL
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", src.ID, src.Name, src.Collector.Kind, target)
	}
}

func runOnce(ctx context.Context, configPath string, sourceID int64) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.runner.Bootstrap(ctx); err != nil {
		return err
	}

	stats, err := a.runner.Run(ctx, sourceID)
	if err != nil {
		return err
	}

	if stats.Dispatch != nil && stats.Dispatch.Sent {
		a.logger.Info("newsletter sent",
			"source", sourceID,
			"publications", stats.Dispatch.Count,
			"watermark", stats.Dispatch.Watermark,
		)
	}
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

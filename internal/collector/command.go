package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/shlex"

	"pubdigest/internal/domain"
)

// Command runs an external scraper and parses the JSON array it prints on
// stdout.
type Command struct {
	args   []string
	logger *slog.Logger
}

func NewCommand(command string, logger *slog.Logger) (*Command, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("split scraper command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("empty scraper command")
	}
	return &Command{args: args, logger: logger}, nil
}

// Collect runs the scraper until it exits or ctx is done. A non-zero exit
// status is logged and the output is parsed anyway.
func (c *Command) Collect(ctx context.Context) ([]domain.RawRecord, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	startTime := time.Now()
	err := cmd.Run()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("run scraper %s: %w", c.args[0], ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		c.logger.Error("scraper exited with error",
			"exit_code", exitErr.ExitCode(),
			"stdout_bytes", stdout.Len(),
			"stderr", stderr.String(),
		)
	case err != nil:
		return nil, fmt.Errorf("run scraper %s: %w", c.args[0], err)
	default:
		c.logger.Debug("scraper finished",
			"duration", time.Since(startTime),
			"stdout_bytes", stdout.Len(),
			"stderr", stderr.String(),
		)
	}

	return Parse(stdout.Bytes())
}

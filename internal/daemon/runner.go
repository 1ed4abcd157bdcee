// Package daemon runs spendsense as a long-lived process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/orchestrator"
	"github.com/ArionMiles/spendsense/pkg/server"
)

const shutdownTimeout = 5 * time.Second

// Options control what the daemon runs.
type Options struct {
	// BackfillDays is the window of the initial and scheduled backfills.
	BackfillDays int
	// Schedule is a cron spec for repeated backfills. Empty or "off" disables them.
	Schedule string
	Location *time.Location
	// HTTPAddr enables the review API when non-empty.
	HTTPAddr string
}

// Runner manages the daemon lifecycle.
type Runner struct {
	orch   *orchestrator.Orchestrator
	server *server.Server
	opts   Options
	logger *slog.Logger
}

// New creates a daemon runner. srv may be nil when the API is disabled.
func New(orch *orchestrator.Orchestrator, srv *server.Server, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	return &Runner{
		orch:   orch,
		server: srv,
		opts:   opts,
		logger: logger.With("component", "daemon"),
	}
}

// Run performs an initial backfill, then listens for live messages, runs scheduled
// backfills and serves the review API. It blocks until ctx is canceled or the API fails.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting spendsense daemon",
		"backfill_days", r.opts.BackfillDays,
		"schedule", r.opts.Schedule,
		"http_addr", r.opts.HTTPAddr,
	)

	r.orch.Backfill(ctx, r.opts.BackfillDays)

	scheduler, err := r.startScheduler(ctx)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer func() { <-scheduler.Stop().Done() }()
	}

	sub, err := r.orch.Listen(ctx)
	switch {
	case errors.Is(err, api.ErrPermissionDenied):
		r.logger.Warn("live listener disabled, read permission not granted")
	case err != nil:
		return fmt.Errorf("subscribing to live messages: %w", err)
	default:
		defer func() {
			if err := sub.Close(); err != nil {
				r.logger.Warn("error closing subscription", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	if r.server != nil && r.opts.HTTPAddr != "" {
		go func() {
			serveErr <- r.server.Listen(r.opts.HTTPAddr)
		}()
	}

	r.logger.Info("daemon started")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("serving review API: %w", err)
		}
	}

	if r.server != nil && r.opts.HTTPAddr != "" {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := r.server.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down review API", "error", err)
		}
	}

	r.logger.Info("daemon stopped")
	return runErr
}

func (r *Runner) startScheduler(ctx context.Context) (*cron.Cron, error) {
	if r.opts.Schedule == "" || r.opts.Schedule == "off" {
		return nil, nil
	}

	c := cron.New(cron.WithLocation(r.opts.Location), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(r.opts.Schedule, func() {
		r.logger.Info("starting scheduled backfill")
		r.orch.Backfill(ctx, r.opts.BackfillDays)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling backfill %q: %w", r.opts.Schedule, err)
	}

	c.Start()
	r.logger.Info("backfill scheduler started", "schedule", r.opts.Schedule, "location", r.opts.Location.String())
	return c, nil
}

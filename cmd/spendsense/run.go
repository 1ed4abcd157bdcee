package main

import (
	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/internal/daemon"
	"github.com/ArionMiles/spendsense/pkg/lifecycle"
	"github.com/ArionMiles/spendsense/pkg/notify"
	"github.com/ArionMiles/spendsense/pkg/server"
)

func runCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the detection daemon and review API",
		Long: `Run performs an initial backfill, then listens for live notifications,
repeats the backfill on SPENDSENSE_BACKFILL_SCHEDULE and serves the review API
on SPENDSENSE_HTTP_ADDR until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := c.cfg

			c.logger.Info("configuration loaded",
				"source", cfg.Source,
				"store", cfg.Store,
				"ledger", cfg.Ledger,
			)

			source, err := c.openSource(ctx)
			if err != nil {
				return err
			}
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			ledger, err := c.openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			bus := notify.NewBus(c.logger)
			notifier := notify.Multi{notify.Log{Logger: c.logger.With("component", "events")}, bus}

			orch, err := c.newOrchestrator(source, store, notifier)
			if err != nil {
				return err
			}

			var srv *server.Server
			if cfg.HTTPAddr != "" {
				srv = server.New(server.Deps{
					Orchestrator: orch,
					Lifecycle:    lifecycle.New(store, c.logger),
					Store:        store,
					Ledger:       ledger,
					Events:       bus,
				}, server.Config{
					Secret:       []byte(cfg.APISecret),
					BackfillDays: cfg.BackfillDays,
				}, c.logger)
			}

			return daemon.New(orch, srv, daemon.Options{
				BackfillDays: cfg.BackfillDays,
				Schedule:     cfg.BackfillSchedule,
				Location:     cfg.Location(),
				HTTPAddr:     cfg.HTTPAddr,
			}, c.logger).Run(ctx)
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func backfillCmd(c *cli) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Scan recent messages once and store new candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if days <= 0 {
				days = c.cfg.BackfillDays
			}

			source, err := c.openSource(ctx)
			if err != nil {
				return err
			}
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			orch, err := c.newOrchestrator(source, store, nil)
			if err != nil {
				return err
			}

			report := orch.Backfill(ctx, days)
			out := cmd.OutOrStdout()
			if report.Skipped {
				fmt.Fprintln(out, "Backfill skipped: the source could not be read (see log).")
				return nil
			}

			fmt.Fprintf(out, "Scanned %d messages since %s, detected %d expenses, %d new.\n",
				report.Scanned, report.Since.Format("2006-01-02"), report.Detected, len(report.Added))
			if len(report.Added) > 0 {
				fmt.Fprintln(out)
				return printCandidates(out, report.Added)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "window in days (default SPENDSENSE_BACKFILL_DAYS)")
	return cmd
}

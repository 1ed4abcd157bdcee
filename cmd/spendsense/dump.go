package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/pkg/api"
)

const defaultDumpFile = "data/fixture.json"

func dumpCmd(c *cli) *cobra.Command {
	var (
		days         int
		maxCount     int
		outPath      string
		detectedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Save messages from the configured source as a fixture file",
		Long: `Dump reads recent messages from the configured source and writes them as JSON.
Point SPENDSENSE_FIXTURE_FILE at the result to replay them with the fixture source,
or use them as test samples.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if days <= 0 {
				days = c.cfg.BackfillDays
			}
			if maxCount <= 0 {
				maxCount = c.cfg.BackfillMax
			}

			source, err := c.openSource(ctx)
			if err != nil {
				return err
			}
			if !source.HasReadPermission(ctx) {
				return api.ErrPermissionDenied
			}

			msgs, err := source.ListMessages(ctx, time.Now().AddDate(0, 0, -days), maxCount)
			if err != nil {
				return fmt.Errorf("listing messages: %w", err)
			}

			if detectedOnly {
				p, err := c.parser()
				if err != nil {
					return err
				}
				kept := msgs[:0]
				for _, msg := range msgs {
					if _, ok := p.Parse(msg); ok {
						kept = append(kept, msg)
					}
				}
				msgs = kept
			}

			if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
				return fmt.Errorf("creating dump directory: %w", err)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating dump file: %w", err)
			}
			defer f.Close()

			if err := writeJSON(f, msgs); err != nil {
				return fmt.Errorf("writing dump file: %w", err)
			}

			c.logger.Info("message dump complete", "count", len(msgs), "path", outPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d messages to %s\n", len(msgs), outPath)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "window in days (default SPENDSENSE_BACKFILL_DAYS)")
	cmd.Flags().IntVar(&maxCount, "max", 0, "maximum messages (default SPENDSENSE_BACKFILL_MAX)")
	cmd.Flags().StringVarP(&outPath, "out", "o", defaultDumpFile, "output file")
	cmd.Flags().BoolVar(&detectedOnly, "detected-only", false, "keep only messages the detector accepts")
	return cmd
}

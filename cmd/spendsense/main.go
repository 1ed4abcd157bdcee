// Command spendsense turns bank and card notifications into expense candidates for review.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/internal/plugins"
	"github.com/ArionMiles/spendsense/pkg/config"
	"github.com/ArionMiles/spendsense/pkg/logging"
)

var version = "dev"

// cli is the state shared by every subcommand once PersistentPreRunE has run.
type cli struct {
	configPath string

	cfg      config.Config
	logger   *slog.Logger
	registry *plugins.Registry
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "spendsense",
		Short: "Detect expenses in bank notifications and queue them for review",
		Long: `spendsense reads transaction notifications from an inbox, extracts the amount,
merchant and payment method, and keeps each detected expense pending until you
confirm or reject it. Confirmed expenses are recorded in the configured ledger.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "optional JSON config file (environment variables override it)")

	root.AddCommand(runCmd(c))
	root.AddCommand(backfillCmd(c))
	root.AddCommand(pendingCmd(c))
	root.AddCommand(showCmd(c))
	root.AddCommand(confirmCmd(c))
	root.AddCommand(rejectCmd(c))
	root.AddCommand(deleteCmd(c))
	root.AddCommand(parseCmd(c))
	root.AddCommand(statusCmd(c))
	root.AddCommand(setupCmd(c))
	root.AddCommand(dumpCmd(c))
	root.AddCommand(tokenCmd(c))
	root.AddCommand(pluginsCmd(c))

	return root
}

func (c *cli) init() error {
	c.logger = logging.Setup(logging.DefaultConfig())

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg
	c.registry = plugins.Default()
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

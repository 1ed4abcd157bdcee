package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/client"
	"github.com/ArionMiles/spendsense/pkg/config"
	"github.com/ArionMiles/spendsense/pkg/rules"
)

func statusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, credentials and the candidate store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// runStatus prints one line per check and a final verdict. Problems are reported, not returned.
func (c *cli) runStatus(ctx context.Context, out io.Writer) error {
	fmt.Fprintln(out, "=== spendsense status ===")
	fmt.Fprintln(out)

	allGood := true
	cfg := c.cfg

	fmt.Fprintf(out, "Plugins: source=%s store=%s ledger=%s\n", cfg.Source, cfg.Store, cfg.Ledger)

	c.checkRules(out, &allGood)
	if cfg.NeedsGoogle() {
		checkFile(out, "Credentials file", cfg.SecretsFile, &allGood)
		checkTokenStatus(out, cfg.TokenFile, &allGood)
	}
	if cfg.Source == config.SourceFixture && cfg.FixtureFile != "" {
		checkFile(out, "Fixture file", cfg.FixtureFile, &allGood)
	}
	if cfg.Source == config.SourceMbox {
		checkFile(out, "Mbox archive", cfg.MboxPath, &allGood)
	}
	c.checkStore(ctx, out, &allGood)

	fmt.Fprintln(out)
	if allGood {
		fmt.Fprintln(out, "Status: ✓ Ready to run")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run 'spendsense run' to start detecting expenses.")
	} else {
		fmt.Fprintln(out, "Status: ✗ Configuration issues detected")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Fix the issues above, then run 'spendsense status' again.")
	}
	return nil
}

func (c *cli) checkRules(out io.Writer, allGood *bool) {
	if c.cfg.RulesFile == "" {
		lib := rules.Default()
		fmt.Fprintf(out, "Rules: ✓ built-in (%d categories, %d trusted senders)\n", len(lib.Categories), len(lib.TrustedSenders))
		return
	}

	fmt.Fprintf(out, "Rules (%s): ", c.cfg.RulesFile)
	lib, err := rules.LoadFile(c.cfg.RulesFile)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Fprintf(out, "✓ %d categories, %d trusted senders\n", len(lib.Categories), len(lib.TrustedSenders))
}

func checkFile(out io.Writer, label, path string, allGood *bool) {
	fmt.Fprintf(out, "%s (%s): ", label, path)
	if !config.FileExists(path) {
		fmt.Fprintln(out, "✗ Not found")
		*allGood = false
		return
	}
	fmt.Fprintln(out, "✓ Found")
}

func checkTokenStatus(out io.Writer, path string, allGood *bool) {
	fmt.Fprintf(out, "OAuth token (%s): ", path)
	token, err := client.TokenFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "✗ Not found (run 'spendsense setup')")
		*allGood = false
		return
	}
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
		return
	}

	if !token.Expiry.IsZero() && token.Expiry.Before(time.Now()) {
		fmt.Fprintln(out, "⚠ Expired (will refresh on next run)")
	} else {
		fmt.Fprintf(out, "✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}
}

func (c *cli) checkStore(ctx context.Context, out io.Writer, allGood *bool) {
	fmt.Fprintf(out, "Candidate store (%s): ", c.cfg.Store)
	store, err := c.openStore(ctx)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
		return
	}
	defer store.Close()

	all, err := store.LoadAll(ctx)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
		return
	}

	counts := make(map[api.Status]int)
	for _, cand := range all {
		counts[cand.Status]++
	}
	fmt.Fprintf(out, "✓ %d pending, %d confirmed, %d rejected\n",
		counts[api.StatusPending], counts[api.StatusConfirmed], counts[api.StatusRejected])

	fmt.Fprint(out, "Last scan: ")
	last, err := store.LastScan(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
	case last.IsZero():
		fmt.Fprintln(out, "never")
	default:
		fmt.Fprintln(out, last.Local().Format(time.RFC3339))
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/pkg/client"
	"github.com/ArionMiles/spendsense/pkg/config"
)

func setupCmd(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorize spendsense with Google for the configured plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg := c.cfg
			fmt.Fprintln(out, "=== spendsense setup ===")
			fmt.Fprintln(out)

			scopes, err := c.registry.Scopes(cfg.Source, cfg.Ledger)
			if err != nil {
				return err
			}
			if len(scopes) == 0 {
				fmt.Fprintf(out, "Source %q and ledger %q need no Google access. Nothing to set up.\n", cfg.Source, cfg.Ledger)
				return nil
			}

			if !config.FileExists(cfg.SecretsFile) {
				return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
					"1. Go to https://console.cloud.google.com/apis/credentials\n"+
					"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
					"3. Download the JSON file and save it as '%s'", cfg.SecretsFile, cfg.SecretsFile)
			}

			if !force && config.FileExists(cfg.TokenFile) {
				fmt.Fprintf(out, "Already authenticated! Token file exists: %s\n", cfg.TokenFile)
				fmt.Fprintln(out)
				fmt.Fprintln(out, "To re-authenticate, run: spendsense setup --force")
				return nil
			}
			if force {
				if err := os.Remove(cfg.TokenFile); err != nil && !os.IsNotExist(err) {
					c.logger.Warn("failed to remove existing token", "error", err)
				}
				fmt.Fprintln(out, "Forcing re-authentication...")
				fmt.Fprintln(out)
			}

			fmt.Fprintln(out, "Required permissions:")
			for _, scope := range scopes {
				fmt.Fprintf(out, "  - %s\n", scope)
			}
			fmt.Fprintln(out)

			err = client.Authorize(cmd.Context(), client.Config{
				SecretsFile: cfg.SecretsFile,
				TokenFile:   cfg.TokenFile,
				Scopes:      scopes,
			}, c.logger)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "=== Setup Complete ===")
			fmt.Fprintf(out, "Token saved to: %s\n", cfg.TokenFile)
			fmt.Fprintln(out, "Run 'spendsense status' to verify, then 'spendsense run'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "discard the cached token and authenticate again")
	return cmd
}

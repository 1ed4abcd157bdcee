package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/pkg/server"
)

func tokenCmd(c *cli) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the review API",
		Long: `Token signs an HS256 token with SPENDSENSE_API_SECRET. Pass it to the review API
as "Authorization: Bearer <token>". A zero --ttl issues a token that never expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.APISecret == "" {
				return errors.New("SPENDSENSE_API_SECRET is not set; the review API is unauthenticated")
			}

			token, err := server.IssueToken([]byte(c.cfg.APISecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "spendsense", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/pkg/api"
)

type parseResult struct {
	Detected  bool                  `json:"detected"`
	Candidate *api.ExpenseCandidate `json:"candidate,omitempty"`
}

func parseCmd(c *cli) *cobra.Command {
	var sender string

	cmd := &cobra.Command{
		Use:   "parse <message text>",
		Short: "Run the detector on one message without storing anything",
		Example: `  spendsense parse "Rs.450 debited from A/c XX1234 to Zomato via UPI" --sender HDFCBK`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.parser()
			if err != nil {
				return err
			}

			candidate, ok := p.Parse(api.RawMessage{
				Body:       strings.Join(args, " "),
				Sender:     sender,
				ReceivedAt: time.Now(),
			})
			return writeJSON(cmd.OutOrStdout(), parseResult{Detected: ok, Candidate: candidate})
		},
	}

	cmd.Flags().StringVar(&sender, "sender", "", "sender id or address of the message")
	return cmd
}

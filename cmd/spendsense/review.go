package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/lifecycle"
)

func pendingCmd(c *cli) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List candidates awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			manager := lifecycle.New(store, c.logger)
			var candidates []api.ExpenseCandidate
			if all {
				candidates = manager.List(ctx, "")
			} else {
				candidates = manager.Pending(ctx)
			}

			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to review.")
				return nil
			}
			return printCandidates(cmd.OutOrStdout(), candidates)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include confirmed and rejected candidates")
	return cmd
}

func showCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one candidate as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			candidate, err := store.Get(ctx, args[0])
			if errors.Is(err, api.ErrNotFound) {
				return fmt.Errorf("%w: %s", api.ErrNotFound, args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), candidate)
		},
	}
}

func confirmCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <id>",
		Short: "Record a pending candidate in the ledger and mark it confirmed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
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

			candidate, err := confirm(ctx, ledger, lifecycle.New(store, c.logger), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Confirmed %s: %s %s at %s\n",
				candidate.ID, currencySymbol, candidate.Amount.StringFixed(2), candidate.Merchant)
			return nil
		},
	}
}

func rejectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Mark a pending candidate as not an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := outcomeErr(args[0], lifecycle.New(store, c.logger).Reject(ctx, args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s\n", args[0])
			return nil
		},
	}
}

func deleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a candidate from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0]); err != nil {
				if errors.Is(err, api.ErrNotFound) {
					return fmt.Errorf("%w: %s", api.ErrNotFound, args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

const currencySymbol = "₹"

func printCandidates(out io.Writer, candidates []api.ExpenseCandidate) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tAMOUNT\tMERCHANT\tCATEGORY\tMETHOD\tSTATUS\tREVIEW")
	for _, c := range candidates {
		review := ""
		if c.NeedsReview {
			review = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			c.TransactionDate.Format("2006-01-02"),
			c.Amount.StringFixed(2),
			c.Merchant,
			c.Category,
			c.PaymentMethod,
			c.Status,
			review,
		)
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsense/internal/plugins"
)

func pluginsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List available sources, stores and ledgers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tSELECTED\tDESCRIPTION\tSCOPES")
			for _, p := range c.registry.List() {
				kind, selected := pluginKind(p), ""
				switch {
				case kind == "source" && p.Name() == c.cfg.Source,
					kind == "store" && p.Name() == c.cfg.Store,
					kind == "ledger" && p.Name() == c.cfg.Ledger:
					selected = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", kind, p.Name(), selected, p.Description(), strings.Join(p.RequiredScopes(), ","))
			}
			return w.Flush()
		},
	}
}

func pluginKind(p plugins.Plugin) string {
	switch p.(type) {
	case plugins.SourcePlugin:
		return "source"
	case plugins.StorePlugin:
		return "store"
	case plugins.LedgerPlugin:
		return "ledger"
	default:
		return "unknown"
	}
}

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/muscatlabs/bankfeed/internal/bank"
)

func banksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "banks",
		Short: "List the banks this tool recognizes",
		Long: `Show the built-in bank configurations: which sender addresses and
statement layouts are auto-detected, and the default currency for each.
Unrecognized senders and layouts fall back to a generic parser.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			registry := bank.NewRegistry()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "NAME\tCURRENCY\tSENDERS\tSTATEMENT COLUMNS")
			for _, b := range registry.Banks() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					b.Name,
					b.Currency,
					strings.Join(b.SenderAddresses, ", "),
					strings.Join(b.HeaderSignature, " | "))
			}

			return nil
		},
	}
}

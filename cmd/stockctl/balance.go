package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stockroom.org/internal/inventory"
	"stockroom.org/internal/ledger"
)

func newBalanceCmd() *cobra.Command {
	var (
		file    string
		catalog string
	)
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Recompute running balances from an exported entry list",
		Long: "Reads a JSON array of catalog entries (file or stdin) and prints each\n" +
			"catalog's entries in ledger order with the balance after each one.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			entries, err := readEntries(in)
			if err != nil {
				return err
			}
			return printBalances(cmd.OutOrStdout(), entries, catalog)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file with catalog entries")
	cmd.Flags().StringVar(&catalog, "catalog", "", "only print this catalog")
	return cmd
}

func readEntries(r io.Reader) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return entries, nil
}

func printBalances(w io.Writer, entries []ledger.Entry, catalog string) error {
	groups := inventory.GroupByCatalog(entries)
	names := make([]string, 0, len(groups))
	for name := range groups {
		if catalog == "" || name == catalog {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no entries for catalog %q", catalog)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATALOG\tRECEIPT DATE\tIN\tOUT\tBALANCE\tID")
	for _, name := range names {
		for _, b := range ledger.ComputeBalances(groups[name]) {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
				name, b.Entry.ReceiptDate, b.Entry.QuantityReceived, b.Entry.IssueQuantity, b.BalanceAfter, b.Entry.ID)
		}
	}
	return tw.Flush()
}

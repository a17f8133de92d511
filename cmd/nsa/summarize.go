package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/nsa-pipeline/internal/observability"
	"github.com/jonathan/nsa-pipeline/internal/summary"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize LEDGER.csv",
	Short: "Print a summary ledger as a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	header, rows, err := summary.ReadRows(args[0])
	if err != nil {
		return err
	}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record())
	}
	return observability.NewPrinter(cmd.OutOrStdout(), false).PrintTable(header, records)
}

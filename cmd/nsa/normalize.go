package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/nsa-pipeline/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize REF.fa IN.bedgraph OUT.bedgraph",
	Short: "Scale bedgraph coverage to the nuclear genome size",
	Long: `Rescales every interval value to value / total * genome size, where the total
is the coverage mass over all non-mitochondrial chromosomes of REF.fa.
Mitochondrial and unknown chromosomes are dropped from the output.`,
	Args: cobra.ExactArgs(3),
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	res, err := normalize.File(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Normalized %d intervals (genome size %d, coverage total %g, %d dropped) to %s\n",
		res.Rows, res.GenomeSize, res.Total, res.Dropped, args[2])
	return nil
}

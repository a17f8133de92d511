// Package main provides the entry point for the nsa barcoded sequencing pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nsa",
	Short: "Barcoded nanopore sequencing analysis pipeline",
	Long: `nsa runs a fixed chain of stages for every barcode of a sequencing run:
read merging, alignment, coverage tracks, target and flank extraction, per-read
dot plots and BLAST classification, and appends one summary row per barcode.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

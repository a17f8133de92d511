package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/nsa-pipeline/internal/shortid"
)

var shortIDCmd = &cobra.Command{
	Use:   "shortid ID...",
	Short: "Print the short id derived from each full sequence id",
	Long: `Prints "<short id><TAB><full id>" for every argument. With --map the pairs are
also appended to a mapping table; with --corpus the collision probability for
that many distinct ids at the chosen hash width is reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runShortID,
}

var (
	shortIDWidth  int
	shortIDMap    string
	shortIDCorpus int
)

func init() {
	shortIDCmd.Flags().IntVarP(&shortIDWidth, "width", "w", shortid.DefaultHashWidth, "Hex digits of content hash kept (1-16)")
	shortIDCmd.Flags().StringVar(&shortIDMap, "map", "", "Append the mappings to this id map table")
	shortIDCmd.Flags().IntVar(&shortIDCorpus, "corpus", 0, "Report the collision probability for this many distinct ids")

	rootCmd.AddCommand(shortIDCmd)
}

func runShortID(cmd *cobra.Command, args []string) error {
	gen := shortid.New(shortIDWidth)
	out := cmd.OutOrStdout()

	var mapper *shortid.Mapper
	if shortIDMap != "" {
		var err error
		mapper, err = shortid.OpenMapper(shortIDMap)
		if err != nil {
			return err
		}
		defer mapper.Close()
	}

	for _, full := range args {
		sid := gen.ShortID(full)
		if mapper != nil {
			if err := mapper.Record(sid, full); err != nil {
				return err
			}
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", sid, full)
	}

	if mapper != nil {
		if err := mapper.Close(); err != nil {
			return fmt.Errorf("failed to close id map: %w", err)
		}
	}

	if shortIDCorpus > 0 {
		p := shortid.CollisionProbability(shortIDWidth, shortIDCorpus)
		_, _ = fmt.Fprintf(out, "collision probability for %d ids at width %d: %.6g (1%% bound: %d ids)\n",
			shortIDCorpus, shortIDWidth, p, shortid.MaxCorpus(shortIDWidth, 0.01))
	}
	return nil
}

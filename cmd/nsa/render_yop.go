package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/nsa-pipeline/internal/render"
	"github.com/jonathan/nsa-pipeline/internal/seqio"
)

var renderYOPCmd = &cobra.Command{
	Use:   "render-yop IN.yop OUT.svg",
	Short: "Draw a YASS .yop alignment file as an SVG dot plot",
	Args:  cobra.ExactArgs(2),
	RunE:  runRenderYOP,
}

var (
	renderRefLen       int
	renderRefFASTA     string
	renderWidth        int
	renderMargin       int
	renderForwardColor string
	renderReverseColor string
	renderThickness    float64
	renderMaxAlign     int
)

func init() {
	defaults := render.DefaultOptions()
	renderYOPCmd.Flags().IntVar(&renderRefLen, "ref-len", 0, "Reference length spanned by the y axis (default: largest reference coordinate)")
	renderYOPCmd.Flags().StringVar(&renderRefFASTA, "ref", "", "Reference FASTA whose total length sets the y axis")
	renderYOPCmd.Flags().IntVar(&renderWidth, "width", defaults.Width, "Plot width in pixels")
	renderYOPCmd.Flags().IntVar(&renderMargin, "margin", defaults.Margin, "Margin around the frame in pixels")
	renderYOPCmd.Flags().StringVar(&renderForwardColor, "forward-color", defaults.ForwardColor, "Line color of forward alignments")
	renderYOPCmd.Flags().StringVar(&renderReverseColor, "reverse-color", defaults.ReverseColor, "Line color of reverse alignments")
	renderYOPCmd.Flags().Float64Var(&renderThickness, "thickness", defaults.Thickness, "Line thickness")
	renderYOPCmd.Flags().IntVar(&renderMaxAlign, "max-align", defaults.MaxAlign, "Maximum alignments drawn")

	rootCmd.AddCommand(renderYOPCmd)
}

func runRenderYOP(cmd *cobra.Command, args []string) error {
	opts := render.Options{
		Width:        renderWidth,
		Margin:       renderMargin,
		RefLen:       renderRefLen,
		MaxAlign:     renderMaxAlign,
		ForwardColor: renderForwardColor,
		ReverseColor: renderReverseColor,
		Thickness:    renderThickness,
	}
	if renderRefFASTA != "" && !cmd.Flags().Changed("ref-len") {
		lengths, err := seqio.ReadLengths(renderRefFASTA)
		if err != nil {
			return fmt.Errorf("failed to read reference lengths: %w", err)
		}
		opts.RefLen = seqio.TotalLength(lengths)
	}

	n, err := render.YOPToSVG(args[0], args[1], opts)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d alignments to %s\n", n, args[1])
	return nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/nsa-pipeline/internal/config"
	"github.com/jonathan/nsa-pipeline/internal/observability"
	"github.com/jonathan/nsa-pipeline/internal/pipeline/steps"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config FILE",
	Short: "Check a pipeline config file against its schema",
	Long:  "Loads a JSON or YAML config file, validates it against the config schema and reports stage combinations that will be skipped at run time.",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateConfig,
}

func init() {
	rootCmd.AddCommand(validateConfigCmd)
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(args[0])
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(cmd.OutOrStdout(), false)
	for _, w := range cfg.Warnings() {
		printer.Warning("", "%s", w)
	}
	printer.Success("%s is valid", args[0])
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stages: %s\n", enabledStages(cfg.Stages))
	return nil
}

func enabledStages(s config.StageFlags) string {
	var on []string
	for _, flag := range steps.Flags() {
		if s.Enabled(flag) {
			on = append(on, flag)
		}
	}
	if len(on) == 0 {
		return "none"
	}
	return strings.Join(on, ",")
}

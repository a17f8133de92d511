package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jonathan/nsa-pipeline/internal/config"
	"github.com/jonathan/nsa-pipeline/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run PREFIX START END REFBASE [THREADS] [MINLEN]",
	Short: "Run the stage pipeline for barcodes START..END",
	Long: `Runs every barcode from START to END (zero-padded to two digits) through the
stage chain: merge -> align -> coverage -> normalize -> targets -> dot plots ->
target-only/flanks -> BLAST -> summary.

Configuration layers, lowest first: built-in defaults, --config (JSON or YAML),
RUN_* environment toggles, flags, positional arguments.`,
	Args: cobra.RangeArgs(4, 6),
	RunE: runPipelineCmd,
}

var (
	runConfigPath  string
	runInputDir    string
	runOutDir      string
	runRefDir      string
	runScriptDir   string
	runControl     string
	runMinMapQ     int
	runHashWidth   int
	runChunkSize   string
	runVerbose     bool
	runDatabaseURL string

	runWIG        bool
	runBedgraph   bool
	runNorm       bool
	runTarget     bool
	runTargetOnly bool
	runFlanks     bool
	runYASS       bool
	runBLAST      bool
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config file, .json or .yaml (values can be overridden by other flags)")

	runCommand.Flags().StringVar(&runInputDir, "input-dir", "", "Directory holding barcodeNN/ read directories")
	runCommand.Flags().StringVarP(&runOutDir, "out-dir", "o", "", "Directory for per-barcode outputs and the summary ledger")
	runCommand.Flags().StringVar(&runRefDir, "ref-dir", "", "Directory holding REFBASE references and their indices")
	runCommand.Flags().StringVar(&runScriptDir, "script-dir", "", "Directory holding the extraction scripts")
	runCommand.Flags().StringVar(&runControl, "control", "", "Control gene basename (default ACT1)")
	runCommand.Flags().IntVar(&runMinMapQ, "min-mapq", 0, "Minimum mapping quality for target/flank extraction")
	runCommand.Flags().IntVar(&runHashWidth, "hash-width", 0, "Hex digits of content hash kept in short ids (4-16)")
	runCommand.Flags().StringVar(&runChunkSize, "chunk-size", "", "minimap2 -K batch size, e.g. 500M")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every external command and skipped stage")

	runCommand.Flags().BoolVar(&runWIG, "wig", false, "Generate the WIG coverage track (RUN_WIG)")
	runCommand.Flags().BoolVar(&runBedgraph, "bedgraph", false, "Generate the bedgraph coverage table (RUN_BEDGRAPH)")
	runCommand.Flags().BoolVar(&runNorm, "norm", false, "Normalize the bedgraph (RUN_NORM)")
	runCommand.Flags().BoolVar(&runTarget, "target", false, "Extract target-spanning reads (RUN_TARGET)")
	runCommand.Flags().BoolVar(&runTargetOnly, "target-only", false, "Extract target-only sequences (RUN_TGT_ONLY)")
	runCommand.Flags().BoolVar(&runFlanks, "flanks", false, "Extract and align target flanks (RUN_FLANKS)")
	runCommand.Flags().BoolVar(&runYASS, "yass", false, "Draw dot plots of positive reads (RUN_YASS)")
	runCommand.Flags().BoolVar(&runBLAST, "blast", false, "Classify reads with BLAST and append the summary (RUN_BLAST)")

	// Database URL for run recording
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveRunConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err = pipeline.RunPipeline(ctx, pipeline.RunOptions{
		Config: cfg,
		Out:    cmd.OutOrStdout(),
	})
	return err
}

// resolveRunConfig layers defaults, the config file, RUN_* variables, flags
// and positional arguments, then validates the result.
func resolveRunConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	// Step 1: Load config file if provided
	cfg := config.Defaults()
	if runConfigPath != "" {
		loadedCfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loadedCfg
		if runVerbose {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Loaded config from: %s\n", runConfigPath)
		}
	}

	// Step 2: Environment stage toggles
	env, err := config.LoadStageEnv()
	if err != nil {
		return nil, err
	}
	env.Apply(&cfg)

	// Step 3: Apply CLI overrides (command-line args take priority)
	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("input-dir") {
		cfg.InputDir = runInputDir
	}
	if flags.Changed("out-dir") {
		cfg.OutDir = runOutDir
	}
	if flags.Changed("ref-dir") {
		cfg.RefDir = runRefDir
	}
	if flags.Changed("script-dir") {
		cfg.ScriptDir = runScriptDir
	}
	if flags.Changed("control") {
		cfg.Control = runControl
	}
	if flags.Changed("min-mapq") {
		cfg.MinMapQ = runMinMapQ
	}
	if flags.Changed("hash-width") {
		cfg.HashWidth = runHashWidth
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = runChunkSize
	}
	if flags.Changed("verbose") {
		cfg.Verbose = runVerbose
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}

	stageFlags := []struct {
		name  string
		value bool
		dst   *bool
	}{
		{"wig", runWIG, &cfg.Stages.WIG},
		{"bedgraph", runBedgraph, &cfg.Stages.Bedgraph},
		{"norm", runNorm, &cfg.Stages.Norm},
		{"target", runTarget, &cfg.Stages.Target},
		{"target-only", runTargetOnly, &cfg.Stages.TargetOnly},
		{"flanks", runFlanks, &cfg.Stages.Flanks},
		{"yass", runYASS, &cfg.Stages.YASS},
		{"blast", runBLAST, &cfg.Stages.BLAST},
	}
	for _, sf := range stageFlags {
		if flags.Changed(sf.name) {
			*sf.dst = sf.value
		}
	}

	// Step 4: Positional arguments
	if err := applyRunArgs(&cfg, args); err != nil {
		return nil, err
	}

	// Step 5: Apply defaults for unset values and validate
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyRunArgs sets PREFIX START END REFBASE [THREADS] [MINLEN] on cfg
func applyRunArgs(cfg *config.Config, args []string) error {
	if len(args) < 4 || len(args) > 6 {
		return fmt.Errorf("expected PREFIX START END REFBASE [THREADS] [MINLEN], got %d arguments", len(args))
	}
	ints := []struct {
		name string
		idx  int
		dst  *int
	}{
		{"START", 1, &cfg.Start},
		{"END", 2, &cfg.End},
		{"THREADS", 4, &cfg.Threads},
		{"MINLEN", 5, &cfg.MinLen},
	}
	for _, a := range ints {
		if a.idx >= len(args) {
			continue
		}
		v, err := strconv.Atoi(args[a.idx])
		if err != nil {
			return fmt.Errorf("invalid %s %q: must be an integer", a.name, args[a.idx])
		}
		*a.dst = v
	}
	cfg.Prefix = args[0]
	cfg.RefBase = args[3]
	return nil
}

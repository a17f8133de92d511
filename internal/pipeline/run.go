// Package pipeline runs the stage chain for every barcode of a sequencing run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jonathan/nsa-pipeline/internal/artifacts"
	"github.com/jonathan/nsa-pipeline/internal/config"
	"github.com/jonathan/nsa-pipeline/internal/db"
	"github.com/jonathan/nsa-pipeline/internal/index"
	"github.com/jonathan/nsa-pipeline/internal/observability"
	"github.com/jonathan/nsa-pipeline/internal/pipeline/steps"
	"github.com/jonathan/nsa-pipeline/internal/shortid"
	"github.com/jonathan/nsa-pipeline/internal/summary"
	"github.com/jonathan/nsa-pipeline/internal/toolexec"
)

// RunOptions holds configuration for running the pipeline
type RunOptions struct {
	Config *config.Config
	// Runner executes external tools; defaults to a subprocess runner.
	Runner toolexec.Runner
	Out    io.Writer
	// Recorder, when set, receives every transition instead of the database.
	Recorder Recorder
	// LookPath resolves required executables; defaults to toolexec.LookupAll.
	LookPath func(names []string) error
}

// Result describes a finished (or aborted) run
type Result struct {
	RunID       uuid.UUID
	Jobs        []JobResult
	SummaryPath string
}

// RunPipeline builds shared indices once, then runs every barcode job from
// Start to End sequentially. A fatal error stops the run immediately; jobs
// already finished keep their outputs.
func RunPipeline(ctx context.Context, opts RunOptions) (result *Result, err error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("pipeline config is required")
	}
	printer := observability.NewPrinter(opts.Out, cfg.Verbose)
	runner := opts.Runner
	if runner == nil {
		runner = toolexec.NewExecRunner(nil)
	}
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = toolexec.LookupAll
	}

	if graphErr := steps.ValidateGraph(); graphErr != nil {
		return nil, fmt.Errorf("invalid stage graph: %w", graphErr)
	}
	for _, w := range cfg.Warnings() {
		printer.Warning("", "%s", w)
	}

	layout := artifacts.Layout{
		InputDir: cfg.InputDir,
		OutDir:   cfg.OutDir,
		RefDir:   cfg.RefDir,
		Control:  cfg.Control,
	}
	shared := artifacts.JobID{Prefix: cfg.Prefix, RefBase: cfg.RefBase}

	printer.Info("Step 1/4: Checking required tools...")
	if err = preflight(cfg, lookPath); err != nil {
		return nil, err
	}

	printer.Info("Step 2/4: Ensuring reference indices...")
	if err = os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	manager := index.NewManager(runner, printer.Writer())
	if err = manager.EnsureAll(ctx, indexSpecs(cfg, layout, shared)); err != nil {
		return nil, err
	}

	result = &Result{RunID: uuid.New()}

	var ledger *summary.Ledger
	if cfg.Stages.BLAST {
		path := layout.Path(shared, artifacts.KindSummary)
		ledger, err = summary.OpenLedger(path, summary.Header(layout.Control))
		if err != nil {
			return nil, err
		}
		defer ledger.Close()
		result.SummaryPath = path
	}

	recorder := opts.Recorder
	if recorder == nil && cfg.DatabaseURL != "" {
		database, runID, dbErr := openRunRecord(ctx, cfg)
		if dbErr != nil {
			printer.Warning("", "Failed to connect to database: %v", dbErr)
			printer.Warning("", "Continuing without database persistence...")
		} else {
			result.RunID = runID
			recorder = &dbRecorder{database: database, runID: runID}
			defer func() {
				if completeErr := database.CompleteRun(context.Background(), runID, db.RunStatusFor(err)); completeErr != nil {
					printer.Warning("", "Failed to complete run record: %v", completeErr)
				}
				database.Close()
			}()
		}
	}

	sched, err := NewScheduler(steps.Ordered(), stageFuncs(), cfg.Stages.Enabled, printer, recorder)
	if err != nil {
		return nil, err
	}

	printer.Info("Step 3/4: Running barcodes %02d to %02d (run %s)...", cfg.Start, cfg.End, result.RunID)
	for i := cfg.Start; i <= cfg.End; i++ {
		job := BarcodeJob{
			Prefix:  cfg.Prefix,
			Index:   i,
			RefBase: cfg.RefBase,
			Threads: cfg.Threads,
			MinLen:  cfg.MinLen,
		}
		jc := &jobContext{
			job:     job,
			layout:  layout,
			cfg:     cfg,
			runner:  runner,
			printer: printer,
			ledger:  ledger,
			ids:     shortid.New(cfg.HashWidth),
		}

		printer.Info("\n=== Barcode %s ===", job.ID())
		jobResult, jobErr := sched.Run(ctx, jc)
		result.Jobs = append(result.Jobs, jobResult)
		if reportErr := printer.PrintStageReport(job.ID(), stageRows(jobResult)); reportErr != nil {
			printer.Warning(job.ID(), "failed to print stage report: %v", reportErr)
		}
		if jobErr != nil {
			return result, jobErr
		}
	}

	printer.Info("Step 4/4: Finishing...")
	if result.SummaryPath != "" {
		printer.Success("Summary written to %s", result.SummaryPath)
	}
	printer.Success("Pipeline complete: %d barcodes processed", len(result.Jobs))
	return result, nil
}

func openRunRecord(ctx context.Context, cfg *config.Config) (*db.DB, uuid.UUID, error) {
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, uuid.Nil, err
	}
	runID, err := database.CreateRun(ctx, &db.RunInput{
		Prefix:  cfg.Prefix,
		RefBase: cfg.RefBase,
		Start:   cfg.Start,
		End:     cfg.End,
		Parameters: map[string]any{
			"threads":    cfg.Threads,
			"min_len":    cfg.MinLen,
			"min_mapq":   cfg.MinMapQ,
			"hash_width": cfg.HashWidth,
			"chunk_size": cfg.ChunkSize,
			"stages":     cfg.Stages,
		},
	})
	if err != nil {
		database.Close()
		return nil, uuid.Nil, err
	}
	return database, runID, nil
}

// requiredTools lists the executables the enabled stages will invoke
func requiredTools(cfg *config.Config) []string {
	t := cfg.Tools
	s := cfg.Stages
	names := []string{t.Minimap2, t.Samtools}
	if s.WIG {
		names = append(names, t.IGVTools)
	}
	if s.Bedgraph || s.Flanks {
		names = append(names, t.Bedtools)
	}
	if s.Target || s.TargetOnly || s.Flanks {
		names = append(names, t.Python)
	}
	if s.Target && s.YASS {
		names = append(names, t.YASS)
	}
	if s.BLAST {
		names = append(names, t.BLASTN, t.MakeBLASTDB)
	}
	return names
}

// requiredScripts lists the extraction scripts the enabled stages will run
func requiredScripts(cfg *config.Config) []string {
	var scripts []string
	if cfg.Stages.Target {
		scripts = append(scripts, TargetScript)
	}
	if cfg.Stages.TargetOnly {
		scripts = append(scripts, TargetOnlyScript)
	}
	if cfg.Stages.Flanks {
		scripts = append(scripts, FlanksScript)
	}
	for i, name := range scripts {
		scripts[i] = filepath.Join(cfg.ScriptDir, name)
	}
	return scripts
}

func preflight(cfg *config.Config, lookPath func([]string) error) error {
	if err := lookPath(requiredTools(cfg)); err != nil {
		return &PreflightError{Message: "missing executables", Cause: err}
	}
	for _, script := range requiredScripts(cfg) {
		if !artifacts.Exists(script) {
			return &PreflightError{Message: fmt.Sprintf("extraction script not found: %s", script)}
		}
	}
	return nil
}

// indexSpecs lists the shared indices needed before any job starts
func indexSpecs(cfg *config.Config, layout artifacts.Layout, shared artifacts.JobID) []index.Spec {
	specs := []index.Spec{
		index.AlignmentIndex(cfg.Tools.Minimap2, layout.Path(shared, artifacts.KindReference), layout.Path(shared, artifacts.KindAlignIndex)),
	}
	if cfg.Stages.BLAST {
		specs = append(specs,
			index.BlastDatabase(cfg.Tools.MakeBLASTDB, layout.Path(shared, artifacts.KindReference), layout.Path(shared, artifacts.KindBlastDB)),
			index.BlastDatabase(cfg.Tools.MakeBLASTDB, layout.Path(shared, artifacts.KindControlReference), layout.Path(shared, artifacts.KindControlBlastDB)),
		)
	}
	return specs
}

func stageRows(r JobResult) []observability.StageRow {
	rows := make([]observability.StageRow, 0, len(r.Transitions))
	for _, t := range r.Transitions {
		detail := t.Detail
		if detail == "" {
			detail = t.Reason
		}
		rows = append(rows, observability.StageRow{
			Stage:    t.Stage,
			Outcome:  string(t.Outcome),
			Detail:   detail,
			Duration: t.Duration,
		})
	}
	return rows
}

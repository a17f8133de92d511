package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonathan/nsa-pipeline/internal/artifacts"
	"github.com/jonathan/nsa-pipeline/internal/config"
	"github.com/jonathan/nsa-pipeline/internal/normalize"
	"github.com/jonathan/nsa-pipeline/internal/observability"
	"github.com/jonathan/nsa-pipeline/internal/pipeline/steps"
	"github.com/jonathan/nsa-pipeline/internal/seqio"
	"github.com/jonathan/nsa-pipeline/internal/shortid"
	"github.com/jonathan/nsa-pipeline/internal/summary"
	"github.com/jonathan/nsa-pipeline/internal/toolexec"
)

// Extraction scripts expected under the configured script directory
const (
	TargetScript     = "Target_seq_extraction.py"
	TargetOnlyScript = "Extract_tgt_only_mappy.py"
	FlanksScript     = "Extract_tgt_flanks_mappy.py"
)

// jobContext carries everything a stage needs while one job runs
type jobContext struct {
	job     BarcodeJob
	layout  artifacts.Layout
	cfg     *config.Config
	runner  toolexec.Runner
	printer *observability.Printer
	ledger  *summary.Ledger
	ids     shortid.Generator
}

func (jc *jobContext) path(kind artifacts.Kind) string {
	return jc.layout.Path(jc.job.ArtifactID(), kind)
}

func (jc *jobContext) paths(kinds []artifacts.Kind) []string {
	return jc.layout.Paths(jc.job.ArtifactID(), kinds)
}

func (jc *jobContext) script(name string) string {
	return filepath.Join(jc.cfg.ScriptDir, name)
}

func (jc *jobContext) run(ctx context.Context, cmd toolexec.Command) error {
	jc.printer.Detail("  $ %s", cmd)
	return jc.runner.Run(ctx, cmd)
}

// stageFuncs binds every registered stage name to its implementation
func stageFuncs() map[string]StageFunc {
	return map[string]StageFunc{
		steps.MergeReads:        mergeReads,
		steps.AlignReads:        alignReads,
		steps.WIGCoverage:       wigCoverage,
		steps.BedgraphCoverage:  bedgraphCoverage,
		steps.NormalizeBedgraph: normalizeBedgraph,
		steps.ExtractTargets:    extractTargets,
		steps.VisualizeTargets:  visualizeTargets,
		steps.ExtractTargetOnly: extractTargetOnly,
		steps.ExtractFlanks:     extractFlanks,
		steps.AlignFlanks:       alignFlanks,
		steps.ConvertFASTA:      convertFASTA,
		steps.BlastReference:    blastReference,
		steps.BlastControl:      blastControl,
		steps.AppendSummary:     appendSummary,
	}
}

func mergeReads(_ context.Context, jc *jobContext) (string, error) {
	stats, err := seqio.MergeFASTQ(jc.path(artifacts.KindRawReads), jc.path(artifacts.KindMerged), jc.job.MinLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("kept %d of %d reads from %d files (min length %d)", stats.Kept, stats.Reads, stats.Files, jc.job.MinLen), nil
}

// sortedAlignment pipes minimap2 SAM output straight into samtools sort.
func sortedAlignment(jc *jobContext, reads, bam string) toolexec.Command {
	threads := jc.job.threads()
	return toolexec.Command{
		Name: jc.cfg.Tools.Samtools,
		Args: []string{"sort", "-@", threads, "-o", bam, "-"},
		Stdin: &toolexec.Command{
			Name: jc.cfg.Tools.Minimap2,
			Args: []string{
				"-ax", "map-ont",
				"-t", threads,
				"-K", jc.cfg.ChunkSize,
				"--secondary=no",
				jc.path(artifacts.KindAlignIndex),
				reads,
			},
		},
	}
}

func (jc *jobContext) alignAndIndex(ctx context.Context, reads, bam string) error {
	if err := jc.run(ctx, sortedAlignment(jc, reads, bam)); err != nil {
		return err
	}
	return jc.run(ctx, toolexec.Command{Name: jc.cfg.Tools.Samtools, Args: []string{"index", bam}})
}

func alignReads(ctx context.Context, jc *jobContext) (string, error) {
	bam := jc.path(artifacts.KindBAM)
	if err := jc.alignAndIndex(ctx, jc.path(artifacts.KindMerged), bam); err != nil {
		return "", err
	}
	return "wrote " + filepath.Base(bam), nil
}

func wigCoverage(ctx context.Context, jc *jobContext) (string, error) {
	wig := jc.path(artifacts.KindWIG)
	err := jc.run(ctx, toolexec.Command{
		Name: jc.cfg.Tools.IGVTools,
		Args: []string{"count", "-w", "1", jc.path(artifacts.KindBAM), wig, jc.path(artifacts.KindReference)},
	})
	if err != nil {
		return "", err
	}
	return "wrote " + filepath.Base(wig), nil
}

func genomeCoverage(jc *jobContext, bam, out string) toolexec.Command {
	return toolexec.Command{
		Name:   jc.cfg.Tools.Bedtools,
		Args:   []string{"genomecov", "-ibam", bam, "-bga"},
		Stdout: out,
	}
}

func bedgraphCoverage(ctx context.Context, jc *jobContext) (string, error) {
	out := jc.path(artifacts.KindBedgraph)
	if err := jc.run(ctx, genomeCoverage(jc, jc.path(artifacts.KindBAM), out)); err != nil {
		return "", err
	}
	return "wrote " + filepath.Base(out), nil
}

func normalizeBedgraph(_ context.Context, jc *jobContext) (string, error) {
	res, err := normalize.File(jc.path(artifacts.KindReference), jc.path(artifacts.KindBedgraph), jc.path(artifacts.KindNormBedgraph))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("normalized %d intervals to genome size %d (%d dropped)", res.Rows, res.GenomeSize, res.Dropped), nil
}

func extractTargets(ctx context.Context, jc *jobContext) (string, error) {
	merged := jc.path(artifacts.KindMerged)
	positive := jc.path(artifacts.KindPositive)
	if err := os.Remove(positive); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to remove stale %s: %w", positive, err)
	}

	err := jc.run(ctx, toolexec.Command{
		Name: jc.cfg.Tools.Python,
		Args: []string{
			jc.script(TargetScript),
			jc.path(artifacts.KindFlankUp),
			jc.path(artifacts.KindFlankDown),
			jc.path(artifacts.KindTargetReference),
			merged,
			"--threads", jc.job.threads(),
			"--min-mapq", strconv.Itoa(jc.cfg.MinMapQ),
		},
	})
	if err != nil {
		return "", err
	}

	// The extractor names its table after the read file.
	raw := strings.TrimSuffix(merged, ".fastq") + ".target.positive"
	if !artifacts.Exists(raw) {
		return "extractor wrote no positive table", nil
	}
	if err := os.Rename(raw, positive); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", raw, positive, err)
	}
	n, err := seqio.CountPositive(positive)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d positive reads", n), nil
}

func extractionCommand(jc *jobContext, script, out string) toolexec.Command {
	return toolexec.Command{
		Name: jc.cfg.Tools.Python,
		Args: []string{
			jc.script(script),
			jc.path(artifacts.KindTargetReference),
			jc.path(artifacts.KindMerged),
			"--threads", jc.job.threads(),
			"--min-mapq", strconv.Itoa(jc.cfg.MinMapQ),
			"--out", out,
		},
	}
}

func fastaDetail(path string) (string, error) {
	if !artifacts.Exists(path) {
		return "no output written", nil
	}
	n, err := seqio.CountFASTA(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d sequences in %s", n, filepath.Base(path)), nil
}

func extractTargetOnly(ctx context.Context, jc *jobContext) (string, error) {
	out := jc.path(artifacts.KindTargetOnly)
	if err := jc.run(ctx, extractionCommand(jc, TargetOnlyScript, out)); err != nil {
		return "", err
	}
	return fastaDetail(out)
}

func extractFlanks(ctx context.Context, jc *jobContext) (string, error) {
	out := jc.path(artifacts.KindFlanks)
	if err := jc.run(ctx, extractionCommand(jc, FlanksScript, out)); err != nil {
		return "", err
	}
	return fastaDetail(out)
}

func alignFlanks(ctx context.Context, jc *jobContext) (string, error) {
	bam := jc.path(artifacts.KindFlankBAM)
	if err := jc.alignAndIndex(ctx, jc.path(artifacts.KindFlanks), bam); err != nil {
		return "", err
	}
	out := jc.path(artifacts.KindFlankBedgraph)
	if err := jc.run(ctx, genomeCoverage(jc, bam, out)); err != nil {
		return "", err
	}
	return "wrote " + filepath.Base(bam) + " and " + filepath.Base(out), nil
}

func convertFASTA(_ context.Context, jc *jobContext) (string, error) {
	n, err := seqio.FASTQToFASTA(jc.path(artifacts.KindMerged), jc.path(artifacts.KindFASTA))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("converted %d reads", n), nil
}

func blastCommand(jc *jobContext, db, out string) toolexec.Command {
	b := jc.cfg.Blast
	return toolexec.Command{
		Name: jc.cfg.Tools.BLASTN,
		Args: []string{
			"-db", db,
			"-query", jc.path(artifacts.KindFASTA),
			"-task", b.Task,
			"-evalue", strconv.FormatFloat(b.EValue, 'g', -1, 64),
			"-num_threads", jc.job.threads(),
			"-max_target_seqs", strconv.Itoa(b.MaxTargetSeqs),
			"-outfmt", "6",
			"-out", out,
		},
	}
}

func (jc *jobContext) blast(ctx context.Context, db, out string) (string, error) {
	if err := jc.run(ctx, blastCommand(jc, db, out)); err != nil {
		return "", err
	}
	hits, err := summary.CountDistinctQueries(out)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d reads hit %s", hits, filepath.Base(db)), nil
}

func blastReference(ctx context.Context, jc *jobContext) (string, error) {
	return jc.blast(ctx, jc.path(artifacts.KindBlastDB), jc.path(artifacts.KindBlastReference))
}

func blastControl(ctx context.Context, jc *jobContext) (string, error) {
	return jc.blast(ctx, jc.path(artifacts.KindControlBlastDB), jc.path(artifacts.KindBlastControl))
}

func appendSummary(_ context.Context, jc *jobContext) (string, error) {
	if jc.ledger == nil {
		return "", fmt.Errorf("summary ledger is not open")
	}
	total, err := seqio.CountFASTA(jc.path(artifacts.KindFASTA))
	if err != nil {
		return "", err
	}
	refHits, err := summary.CountDistinctQueries(jc.path(artifacts.KindBlastReference))
	if err != nil {
		return "", err
	}
	actHits, err := summary.CountDistinctQueries(jc.path(artifacts.KindBlastControl))
	if err != nil {
		return "", err
	}

	row := summary.NewRow(jc.job.ID(), total, refHits, actHits)
	if err := jc.ledger.Append(row); err != nil {
		return "", err
	}
	rec := row.Record()
	return fmt.Sprintf("%s: total=%d ref=%d control=%d ref/control=%s", filepath.Base(jc.ledger.Path()), total, refHits, actHits, rec[len(rec)-1]), nil
}

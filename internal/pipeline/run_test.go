package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/nsa-pipeline/internal/config"
	"github.com/jonathan/nsa-pipeline/internal/pipeline/steps"
	"github.com/jonathan/nsa-pipeline/internal/seqio"
	"github.com/jonathan/nsa-pipeline/internal/shortid"
	"github.com/jonathan/nsa-pipeline/internal/summary"
	"github.com/jonathan/nsa-pipeline/internal/testutil"
	"github.com/jonathan/nsa-pipeline/internal/toolexec"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// runFixture lays out inputs, references and scripts for a P/X run and
// scripts fake tools that produce what the real ones would.
type runFixture struct {
	cfg    *config.Config
	runner *testutil.FakeRunner
	out    bytes.Buffer

	// positives maps a barcode to the ReadIDs its extraction reports.
	positives map[string][]string
}

func newRunFixture(t *testing.T, start, end int) *runFixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.Prefix = "P"
	cfg.RefBase = "X"
	cfg.Start = start
	cfg.End = end
	cfg.Threads = 2
	cfg.MinLen = 5
	cfg.InputDir = filepath.Join(root, "input")
	cfg.OutDir = filepath.Join(root, "out")
	cfg.RefDir = filepath.Join(root, "reference")
	cfg.ScriptDir = filepath.Join(root, "scripts")
	cfg.Stages = config.StageFlags{Target: true, BLAST: true}

	f := &runFixture{cfg: &cfg, runner: testutil.NewFakeRunner(), positives: make(map[string][]string)}

	for i := start; i <= end; i++ {
		bc := fmt.Sprintf("%02d", i)
		reads := ""
		for r := 1; r <= 4; r++ {
			reads += fastqRecord(fmt.Sprintf("read%d-bc%s runid=abc", r, bc), "ACGTACGT")
		}
		reads += fastqRecord("short-bc"+bc, "ACG")
		writeFile(t, filepath.Join(cfg.InputDir, "barcode"+bc, "reads.fastq"), reads)
		f.positives[bc] = []string{"read1-bc" + bc + " runid=abc", "read2-bc" + bc + " runid=abc"}
	}

	for _, name := range []string{"X.fa", "X_up.fa", "X_down.fa", "X_target.fa", "ACT1.fa"} {
		writeFile(t, filepath.Join(cfg.RefDir, name), ">chrI\nACGTACGTAC\n>chrmt\nAAAA\n")
	}
	writeFile(t, filepath.Join(cfg.RefDir, "X.mmi"), "index")
	writeFile(t, filepath.Join(cfg.RefDir, "blastdb", "X.nin"), "db")
	writeFile(t, filepath.Join(cfg.RefDir, "blastdb", "ACT1.nin"), "db")
	for _, s := range []string{TargetScript, TargetOnlyScript, FlanksScript} {
		writeFile(t, filepath.Join(cfg.ScriptDir, s), "# script\n")
	}

	f.scriptTools()
	return f
}

func fastqRecord(id, seq string) string {
	return "@" + id + "\n" + seq + "\n+\n" + strings.Repeat("I", len(seq)) + "\n"
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func barcodeOf(path string) string {
	// merged.P.NN.fastq or P.NN.<...>
	for _, part := range strings.Split(filepath.Base(path), ".") {
		if len(part) == 2 && part[0] >= '0' && part[0] <= '9' {
			return part
		}
	}
	return ""
}

func (f *runFixture) scriptTools() {
	f.runner.Handle("minimap2", func(cmd toolexec.Command) error {
		if len(cmd.Args) == 3 && cmd.Args[0] == "-d" {
			return os.WriteFile(cmd.Args[1], []byte("index"), 0644)
		}
		return nil
	})
	f.runner.Handle("makeblastdb", func(cmd toolexec.Command) error {
		return os.WriteFile(testutil.ArgAfter(cmd.Args, "-out")+".nin", []byte("db"), 0644)
	})
	f.runner.Handle("samtools", func(cmd toolexec.Command) error {
		switch cmd.Args[0] {
		case "sort":
			return os.WriteFile(testutil.ArgAfter(cmd.Args, "-o"), []byte("BAM"), 0644)
		case "index":
			return os.WriteFile(cmd.Args[1]+".bai", []byte("BAI"), 0644)
		}
		return fmt.Errorf("unexpected samtools call: %s", cmd)
	})
	f.runner.Handle("igvtools", func(cmd toolexec.Command) error {
		return os.WriteFile(cmd.Args[4], []byte("track type=wiggle_0\n"), 0644)
	})
	f.runner.Handle("bedtools", func(cmd toolexec.Command) error {
		return os.WriteFile(cmd.Stdout, []byte("chrI\t0\t10\t2\nchrmt\t0\t4\t9\n"), 0644)
	})
	f.runner.Handle("python3", func(cmd toolexec.Command) error {
		switch filepath.Base(cmd.Args[0]) {
		case TargetScript:
			merged := cmd.Args[4]
			table := seqio.PositiveHeader + "\n"
			for _, id := range f.positives[barcodeOf(merged)] {
				table += "8\t" + id + "\tACGTACGT\n"
			}
			return os.WriteFile(strings.TrimSuffix(merged, ".fastq")+".target.positive", []byte(table), 0644)
		default:
			return os.WriteFile(testutil.ArgAfter(cmd.Args, "--out"), []byte(">r1_up\nACGT\n>r1_down\nTTGA\n"), 0644)
		}
	})
	f.runner.Handle("yass", func(cmd toolexec.Command) error {
		query, err := os.ReadFile(cmd.Args[4])
		if err != nil {
			return err
		}
		var yop string
		switch {
		case strings.Contains(string(query), "noalign"):
		case strings.Contains(string(query), "headeronly"):
			yop = "# YASS 1.15 parameters: -d 3\n"
		default:
			yop = "*(1-8)(1-8) Ev: 1e-05 s: 8/8 f\n*(8-1)(3-10) Ev: 2e-03 s: 7/8 r\n"
		}
		return os.WriteFile(testutil.ArgAfter(cmd.Args, "-o"), []byte(yop), 0644)
	})
	f.runner.Handle("blastn", func(cmd toolexec.Command) error {
		bc := barcodeOf(testutil.ArgAfter(cmd.Args, "-query"))
		var hits string
		if filepath.Base(testutil.ArgAfter(cmd.Args, "-db")) == "ACT1" {
			hits = fmt.Sprintf("read3-bc%s\tACT1\t99.0\n", bc)
		} else {
			hits = fmt.Sprintf("read1-bc%s\tchrI\t100.0\nread1-bc%s\tchrI\t98.0\nread2-bc%s\tchrI\t97.5\n", bc, bc, bc)
		}
		return os.WriteFile(testutil.ArgAfter(cmd.Args, "-out"), []byte(hits), 0644)
	})
}

func (f *runFixture) run() (*Result, error) {
	return RunPipeline(context.Background(), RunOptions{
		Config:   f.cfg,
		Runner:   f.runner,
		Out:      &f.out,
		LookPath: func([]string) error { return nil },
	})
}

func (f *runFixture) outPath(name string) string {
	return filepath.Join(f.cfg.OutDir, name)
}

func TestRunPipeline_TargetAndBlast(t *testing.T) {
	f := newRunFixture(t, 1, 3)
	f.cfg.Stages = config.StageFlags{Target: true, YASS: false, BLAST: true}

	res, err := f.run()
	require.NoError(t, err, f.out.String())
	require.Len(t, res.Jobs, 3)

	for _, bc := range []string{"01", "02", "03"} {
		for _, name := range []string{
			"merged.P." + bc + ".fastq",
			"P." + bc + ".exp.sort.bam",
			"RCC.P." + bc + ".X.positive",
			"P." + bc + ".X.blast.tsv",
			"P." + bc + ".ACT1.blast.tsv",
		} {
			assert.FileExists(t, f.outPath(name))
		}
		assert.NoDirExists(t, f.outPath("P."+bc+".X.yass"))
	}

	job := res.Jobs[0]
	assert.Equal(t, Executed, job.Outcome(steps.ExtractTargets))
	assert.Equal(t, SkippedDisabled, job.Outcome(steps.VisualizeTargets))
	assert.Equal(t, SkippedDisabled, job.Outcome(steps.WIGCoverage))
	assert.Equal(t, SkippedMissingInput, job.Outcome(steps.NormalizeBedgraph))
	assert.Equal(t, Executed, job.Outcome(steps.AppendSummary))
	assert.Len(t, job.Transitions, len(steps.Order))

	header, rows, err := summary.ReadRows(res.SummaryPath)
	require.NoError(t, err)
	assert.Equal(t, summary.Header("ACT1"), header)
	require.Len(t, rows, 3)
	for i, bc := range []string{"01", "02", "03"} {
		assert.Equal(t, "P."+bc, rows[i].SampleID)
		assert.Equal(t, 4, rows[i].TotalReads)
		assert.Equal(t, 2, rows[i].RefHits)
		assert.Equal(t, 1, rows[i].ActHits)
		assert.InDelta(t, 2.0, rows[i].RefToActRatio, 1e-9)
	}
	assert.Equal(t, f.outPath("P.X.summary.csv"), res.SummaryPath)

	// No index was rebuilt and python only ran the target extractor.
	assert.Empty(t, f.runner.CallsTo("makeblastdb"))
	assert.Len(t, f.runner.CallsTo("python3"), 3)
	assert.Empty(t, f.runner.CallsTo("yass"))
}

func TestRunPipeline_SecondRunAppendsAndReusesMerge(t *testing.T) {
	f := newRunFixture(t, 1, 1)
	_, err := f.run()
	require.NoError(t, err)

	merged, err := os.ReadFile(f.outPath("merged.P.01.fastq"))
	require.NoError(t, err)
	writeFile(t, filepath.Join(f.cfg.InputDir, "barcode01", "late.fastq"), fastqRecord("late", "ACGTACGTAA"))

	res, err := f.run()
	require.NoError(t, err)
	assert.Equal(t, Reused, res.Jobs[0].Outcome(steps.MergeReads))
	assert.Equal(t, Executed, res.Jobs[0].Outcome(steps.AlignReads))

	again, err := os.ReadFile(f.outPath("merged.P.01.fastq"))
	require.NoError(t, err)
	assert.Equal(t, merged, again)

	_, rows, err := summary.ReadRows(res.SummaryPath)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRunPipeline_TargetDisabledSkipsVisualization(t *testing.T) {
	f := newRunFixture(t, 1, 1)
	f.cfg.Stages = config.StageFlags{Target: false, YASS: true}

	res, err := f.run()
	require.NoError(t, err)
	job := res.Jobs[0]
	assert.Equal(t, SkippedDisabled, job.Outcome(steps.ExtractTargets))
	assert.Equal(t, SkippedMissingInput, job.Outcome(steps.VisualizeTargets))
	assert.Empty(t, f.runner.CallsTo("yass"))
	assert.NoDirExists(t, f.outPath("P.01.X.yass"))
	assert.Contains(t, f.out.String(), "Warning: RUN_YASS=1 requires RUN_TARGET=1")
	assert.Contains(t, f.out.String(), "Warning: [P.01] skipping visualize_targets")
	assert.Empty(t, res.SummaryPath)
}

func TestRunPipeline_ZeroPositivesContinues(t *testing.T) {
	f := newRunFixture(t, 1, 3)
	f.cfg.Stages = config.StageFlags{Target: true, YASS: true}
	f.positives["02"] = nil
	// Plots from an earlier run with positives must not survive.
	writeFile(t, filepath.Join(f.outPath("P.02.X.yass"), "id_map.tsv"), "read1_0a1b2c3d\tread1\n")
	writeFile(t, filepath.Join(f.outPath("P.02.X.yass"), "read1_0a1b2c3d.svg"), "<svg/>")

	res, err := f.run()
	require.NoError(t, err)
	require.Len(t, res.Jobs, 3)

	assert.Equal(t, SkippedMissingInput, res.Jobs[1].Outcome(steps.VisualizeTargets))
	assert.NoDirExists(t, f.outPath("P.02.X.yass"))
	assert.Contains(t, f.out.String(), "Warning: [P.02] skipping visualize_targets")

	for _, idx := range []int{0, 2} {
		assert.Equal(t, Executed, res.Jobs[idx].Outcome(steps.VisualizeTargets))
	}
	assert.DirExists(t, f.outPath("P.03.X.yass"))
}

func TestRunPipeline_VisualizationWritesPlotsAndIDMap(t *testing.T) {
	f := newRunFixture(t, 1, 1)
	f.cfg.Stages = config.StageFlags{Target: true, YASS: true}
	f.positives["01"] = []string{
		"read1-bc01 runid=abc",
		"read2-bc01 runid=abc",
		"read3-bc01 noalign",
		"read4-bc01 headeronly",
		"read1-bc01 runid=abc", // duplicate row
	}

	res, err := f.run()
	require.NoError(t, err)
	assert.Equal(t, Executed, res.Jobs[0].Outcome(steps.VisualizeTargets))

	dir := f.outPath("P.01.X.yass")
	rows, err := shortid.ReadTable(filepath.Join(dir, "id_map.tsv"))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	gen := shortid.New(f.cfg.HashWidth)
	for _, row := range rows {
		assert.Equal(t, gen.ShortID(row.FullID), row.ShortID)
		svg := filepath.Join(dir, row.ShortID+".svg")
		if strings.Contains(row.FullID, "noalign") || strings.Contains(row.FullID, "headeronly") {
			assert.NoFileExists(t, svg)
			continue
		}
		data, err := os.ReadFile(svg)
		require.NoError(t, err)
		assert.Contains(t, string(data), "<svg")
		assert.Equal(t, 2, strings.Count(string(data), "<line"))
	}
	assert.Len(t, f.runner.CallsTo("yass"), 4)
	assert.Contains(t, res.Jobs[0].Transitions[6].Detail, "rendered 2 of 4 positive reads (2 without alignment)")
}

func TestRunPipeline_AllStages(t *testing.T) {
	f := newRunFixture(t, 4, 4)
	f.cfg.Stages = config.StageFlags{
		WIG: true, Bedgraph: true, Norm: true, Target: true,
		TargetOnly: true, Flanks: true, YASS: true, BLAST: true,
	}
	f.positives["04"] = []string{"read1-bc04 runid=abc"}
	rec := &memoryRecorder{}

	res, err := RunPipeline(context.Background(), RunOptions{
		Config:   f.cfg,
		Runner:   f.runner,
		Out:      &f.out,
		Recorder: rec,
		LookPath: func([]string) error { return nil },
	})
	require.NoError(t, err, f.out.String())

	for _, tr := range res.Jobs[0].Transitions {
		assert.Equal(t, Executed, tr.Outcome, tr.Stage)
	}
	for _, name := range []string{
		"P.04.exp.X.wig",
		"P.04.exp.X.bedgraph",
		"P.04.exp.X.norm.bedgraph",
		"P.04.X.tgt.fasta",
		"P.04.X.tgt_flanks.fa",
		"P.04.X.flanks.sort.bam",
		"P.04.X.flanks.bedgraph",
		"merged.P.04.fasta",
	} {
		assert.FileExists(t, f.outPath(name))
	}

	norm, err := os.ReadFile(f.outPath("P.04.exp.X.norm.bedgraph"))
	require.NoError(t, err)
	assert.Equal(t, "chrI\t0\t10\t1\n", string(norm))

	entries := rec.Entries()
	require.Len(t, entries, len(steps.Order))
	for i, e := range entries {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, "P.04", e.JobID)
		assert.Equal(t, steps.Order[i], e.Stage)
	}

	align := f.runner.CallsTo("minimap2")[0]
	assert.Equal(t, "samtools", align.Name)
	assert.Contains(t, align.Stdin.Args, "--secondary=no")
	assert.Equal(t, "500M", testutil.ArgAfter(align.Stdin.Args, "-K"))
	assert.Equal(t, "2", testutil.ArgAfter(align.Stdin.Args, "-t"))

	blast := f.runner.CallsTo("blastn")[0]
	assert.Equal(t, "megablast", testutil.ArgAfter(blast.Args, "-task"))
	assert.Equal(t, "1e-10", testutil.ArgAfter(blast.Args, "-evalue"))
	assert.Equal(t, "6", testutil.ArgAfter(blast.Args, "-outfmt"))
}

func TestRunPipeline_FatalToolErrorAborts(t *testing.T) {
	f := newRunFixture(t, 1, 3)
	f.runner.Handle("samtools", func(cmd toolexec.Command) error {
		return &toolexec.ToolError{Command: cmd.String(), ExitCode: 1, Stderr: "truncated file"}
	})

	res, err := f.run()
	require.Error(t, err)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, steps.AlignReads, stageErr.Stage)
	assert.Equal(t, "P.01", stageErr.JobID)
	var toolErr *toolexec.ToolError
	assert.True(t, errors.As(err, &toolErr))

	require.Len(t, res.Jobs, 1)
	assert.Equal(t, Failed, res.Jobs[0].Outcome(steps.AlignReads))
	assert.NoFileExists(t, f.outPath("merged.P.02.fastq"))
}

func TestRunPipeline_MissingBarcodeIsRecoverable(t *testing.T) {
	f := newRunFixture(t, 1, 2)
	require.NoError(t, os.RemoveAll(filepath.Join(f.cfg.InputDir, "barcode01")))

	res, err := f.run()
	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, SkippedMissingInput, res.Jobs[0].Outcome(steps.MergeReads))
	assert.Equal(t, SkippedMissingInput, res.Jobs[0].Outcome(steps.AppendSummary))
	assert.Equal(t, Executed, res.Jobs[1].Outcome(steps.AppendSummary))
	assert.Contains(t, f.out.String(), "Warning: [P.01] skipping merge_reads")

	_, rows, err := summary.ReadRows(res.SummaryPath)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "P.02", rows[0].SampleID)
}

func TestRunPipeline_BuildsMissingIndicesOnce(t *testing.T) {
	f := newRunFixture(t, 1, 2)
	require.NoError(t, os.Remove(filepath.Join(f.cfg.RefDir, "X.mmi")))
	require.NoError(t, os.RemoveAll(filepath.Join(f.cfg.RefDir, "blastdb")))

	_, err := f.run()
	require.NoError(t, err)

	var builds int
	for _, c := range f.runner.CallsTo("minimap2") {
		if c.Name == "minimap2" && c.Args[0] == "-d" {
			builds++
		}
	}
	assert.Equal(t, 1, builds)
	assert.Len(t, f.runner.CallsTo("makeblastdb"), 2)
	assert.FileExists(t, filepath.Join(f.cfg.RefDir, "blastdb", "ACT1.nin"))
}

func TestRunPipeline_Preflight(t *testing.T) {
	t.Run("missing tool", func(t *testing.T) {
		f := newRunFixture(t, 1, 1)
		_, err := RunPipeline(context.Background(), RunOptions{
			Config: f.cfg,
			Runner: f.runner,
			Out:    &f.out,
			LookPath: func(names []string) error {
				return &toolexec.MissingToolError{Tools: []string{"blastn"}}
			},
		})
		var pre *PreflightError
		require.True(t, errors.As(err, &pre))
		assert.Contains(t, err.Error(), "blastn")
		assert.Empty(t, f.runner.Calls())
	})

	t.Run("missing script", func(t *testing.T) {
		f := newRunFixture(t, 1, 1)
		require.NoError(t, os.Remove(filepath.Join(f.cfg.ScriptDir, TargetScript)))
		_, err := f.run()
		var pre *PreflightError
		require.True(t, errors.As(err, &pre))
		assert.Contains(t, err.Error(), TargetScript)
	})
}

func TestRequiredTools(t *testing.T) {
	cfg := config.Defaults()
	cfg.Stages = config.StageFlags{YASS: true}
	assert.Equal(t, []string{"minimap2", "samtools"}, requiredTools(&cfg))

	cfg.Stages = config.StageFlags{Target: true, YASS: true, BLAST: true}
	assert.Equal(t, []string{"minimap2", "samtools", "python3", "yass", "blastn", "makeblastdb"}, requiredTools(&cfg))
}

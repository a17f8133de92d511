package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/nsa-pipeline/internal/artifacts"
	"github.com/jonathan/nsa-pipeline/internal/fanout"
	"github.com/jonathan/nsa-pipeline/internal/render"
	"github.com/jonathan/nsa-pipeline/internal/seqio"
	"github.com/jonathan/nsa-pipeline/internal/shortid"
	"github.com/jonathan/nsa-pipeline/internal/toolexec"
)

// visualizeTargets aligns every positive read against the reference with
// yass and draws each alignment as an SVG dot plot. Units run with at most
// Threads in flight and share one id map.
func visualizeTargets(ctx context.Context, jc *jobContext) (string, error) {
	records, err := seqio.ReadPositive(jc.path(artifacts.KindPositive))
	if err != nil {
		return "", err
	}

	records = uniqueByID(records)

	reference := jc.path(artifacts.KindReference)
	lengths, err := seqio.ReadLengths(reference)
	if err != nil {
		return "", fmt.Errorf("failed to read reference lengths: %w", err)
	}
	opts := jc.renderOptions(seqio.TotalLength(lengths))

	dir := jc.path(artifacts.KindYassDir)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	mapper, err := shortid.OpenMapper(jc.path(artifacts.KindIDMap))
	if err != nil {
		return "", err
	}
	defer mapper.Close()

	report, err := fanout.Run(ctx, records, jc.job.Threads, func(ctx context.Context, rec seqio.SequenceRecord) error {
		return jc.visualizeOne(ctx, mapper, dir, reference, opts, rec)
	})
	if err != nil {
		return "", err
	}
	if err := mapper.Close(); err != nil {
		return "", fmt.Errorf("failed to close id map: %w", err)
	}

	for _, e := range report.SkipErrors {
		jc.printer.Detail("  skipped: %v", e)
	}
	return fmt.Sprintf("rendered %d of %d positive reads (%d without alignment)", report.Completed, len(records), report.Skipped), nil
}

// visualizeOne handles a single positive read. A search that finds nothing
// skips the unit; failing to record its short id is fatal.
func (jc *jobContext) visualizeOne(ctx context.Context, mapper *shortid.Mapper, dir, reference string, opts render.Options, rec seqio.SequenceRecord) error {
	sid := jc.ids.ShortID(rec.FullID)
	if err := mapper.Record(sid, rec.FullID); err != nil {
		return err
	}

	query := filepath.Join(dir, sid+".fa")
	if err := seqio.WriteFASTAFile(query, rec.FullID, rec.Sequence); err != nil {
		return err
	}

	yop := filepath.Join(dir, sid+".yop")
	err := jc.run(ctx, yassCommand(jc, query, reference, yop))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fanout.Skip(fmt.Errorf("%s: %w", sid, err))
	}
	alns, err := render.ReadYOP(yop, opts.MaxAlign)
	if err != nil {
		return fanout.Skip(fmt.Errorf("%s: %w", sid, err))
	}
	if len(alns) == 0 {
		return fanout.Skip(fmt.Errorf("%s: yass reported no alignment", sid))
	}

	if err := render.WriteSVGFile(filepath.Join(dir, sid+".svg"), alns, opts); err != nil {
		return fanout.Skip(fmt.Errorf("%s: %w", sid, err))
	}
	return nil
}

func (jc *jobContext) renderOptions(refLen int) render.Options {
	opts := render.DefaultOptions()
	r := jc.cfg.Render
	if r.Width > 0 {
		opts.Width = r.Width
	}
	if r.Margin > 0 {
		opts.Margin = r.Margin
	}
	if r.ForwardColor != "" {
		opts.ForwardColor = r.ForwardColor
	}
	if r.ReverseColor != "" {
		opts.ReverseColor = r.ReverseColor
	}
	if r.Thickness > 0 {
		opts.Thickness = r.Thickness
	}
	opts.RefLen = refLen
	return opts
}

func yassCommand(jc *jobContext, query, reference, out string) toolexec.Command {
	return toolexec.Command{
		Name: jc.cfg.Tools.YASS,
		Args: []string{"-d", "3", "-o", out, query, reference},
	}
}

// uniqueByID keeps the first record of each full ID so no two units write
// the same files.
func uniqueByID(records []seqio.SequenceRecord) []seqio.SequenceRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, rec := range records {
		if seen[rec.FullID] {
			continue
		}
		seen[rec.FullID] = true
		out = append(out, rec)
	}
	return out
}

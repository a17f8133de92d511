package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonathan/nsa-pipeline/internal/artifacts"
	"github.com/jonathan/nsa-pipeline/internal/cache"
	"github.com/jonathan/nsa-pipeline/internal/observability"
	"github.com/jonathan/nsa-pipeline/internal/pipeline/steps"
	"github.com/jonathan/nsa-pipeline/internal/seqio"
)

// StageFunc executes one stage of a job and returns a one-line summary of
// what it did. A returned error is fatal for the whole run.
type StageFunc func(ctx context.Context, jc *jobContext) (string, error)

// Recorder persists stage transitions as they happen
type Recorder interface {
	Record(ctx context.Context, jobID string, seq int, t Transition) error
}

// Scheduler walks the stage definitions of one job in order and decides,
// from declared artifacts alone, whether each stage executes, is reused,
// or is skipped.
type Scheduler struct {
	stages   []steps.StepDefinition
	impls    map[string]StageFunc
	enabled  func(flag string) bool
	printer  *observability.Printer
	recorder Recorder
}

// NewScheduler creates a scheduler. Every stage in defs must have an entry in impls.
func NewScheduler(defs []steps.StepDefinition, impls map[string]StageFunc, enabled func(string) bool, printer *observability.Printer, recorder Recorder) (*Scheduler, error) {
	var missing []string
	for _, def := range defs {
		if impls[def.Name] == nil {
			missing = append(missing, def.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("no implementation for stages: %s", strings.Join(missing, ", "))
	}
	if enabled == nil {
		enabled = func(string) bool { return true }
	}
	return &Scheduler{stages: defs, impls: impls, enabled: enabled, printer: printer, recorder: recorder}, nil
}

// Run drives the job from Pending to Done. Transitions only move forward and
// no stage is retried. Skips are absorbed; the first stage error stops the
// job and is returned as a *StageError.
func (s *Scheduler) Run(ctx context.Context, jc *jobContext) (JobResult, error) {
	result := JobResult{Job: jc.job}
	jobID := jc.job.ID()
	total := len(s.stages)
	// produced holds the non-source artifacts this job has made available so far.
	produced := make(map[artifacts.Kind]bool)

	for i, def := range s.stages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		seq := i + 1
		outcome, reason := s.decide(jc, def, produced)

		t := Transition{Stage: def.Name, Category: def.Category, Outcome: outcome, Reason: reason}
		switch outcome {
		case SkippedDisabled:
			s.printer.Detail("[%s] Step %d/%d: %s skipped (%s%s)", jobID, seq, total, def.Name, reason, s.downstreamNote(def.Name))

		case SkippedMissingInput:
			if def.ClearOnSkip {
				s.clearOutputs(jc, def)
			}
			if s.stageEnabled(def) {
				s.printer.Warning(jobID, "skipping %s: %s%s", def.Name, reason, s.downstreamNote(def.Name))
			} else {
				s.printer.Detail("[%s] Step %d/%d: %s skipped (%s)", jobID, seq, total, def.Name, reason)
			}

		case Reused:
			s.printer.Step(jobID, seq, total, "%s (reusing existing outputs)", def.Name)
			for _, out := range def.Outputs {
				produced[out] = true
			}

		case Executed:
			s.printer.Step(jobID, seq, total, "%s", def.Name)
			start := time.Now()
			detail, err := s.impls[def.Name](ctx, jc)
			t.Duration = time.Since(start)
			if err != nil {
				t.Outcome = Failed
				t.Reason = err.Error()
				result.Transitions = append(result.Transitions, t)
				s.record(ctx, jobID, seq, t)
				return result, &StageError{JobID: jobID, Stage: def.Name, Message: "stage command failed", Cause: err}
			}
			t.Detail = detail
			if detail != "" {
				s.printer.Success("%s", detail)
			}
			for _, out := range def.Outputs {
				if artifacts.Exists(jc.path(out)) {
					produced[out] = true
				}
			}
		}

		result.Transitions = append(result.Transitions, t)
		s.record(ctx, jobID, seq, t)
	}
	return result, nil
}

// decide evaluates one stage. Unproduced upstream artifacts force a skip
// before the stage's own flag is consulted.
func (s *Scheduler) decide(jc *jobContext, def steps.StepDefinition, produced map[artifacts.Kind]bool) (Outcome, string) {
	var unmet []string
	for _, in := range def.Inputs {
		if !artifacts.IsSource(in) && !produced[in] {
			unmet = append(unmet, string(in))
		}
	}
	if len(unmet) > 0 {
		return SkippedMissingInput, "upstream output not produced: " + strings.Join(unmet, ", ")
	}

	if !s.stageEnabled(def) {
		return SkippedDisabled, def.Flag + " is off"
	}

	if !cache.ShouldRun(def.Policy, jc.paths(def.Outputs)) {
		return Reused, "outputs already present"
	}

	var missing []string
	for _, in := range def.Inputs {
		if artifacts.IsSource(in) && !artifacts.Present(in, jc.path(in)) {
			missing = append(missing, jc.path(in))
		}
	}
	if len(missing) > 0 {
		return SkippedMissingInput, "missing input: " + strings.Join(missing, ", ")
	}

	for _, kind := range def.NonEmpty {
		if !hasContent(kind, jc.path(kind)) {
			return SkippedMissingInput, fmt.Sprintf("%s has no records", jc.path(kind))
		}
	}
	return Executed, ""
}

// clearOutputs removes whatever an earlier run left at the stage's output paths
func (s *Scheduler) clearOutputs(jc *jobContext, def steps.StepDefinition) {
	for _, path := range jc.paths(def.Outputs) {
		if err := os.RemoveAll(path); err != nil {
			s.printer.Warning(jc.job.ID(), "failed to remove stale %s: %v", path, err)
		}
	}
}

// downstreamNote names the stages that lose their inputs when name is skipped
func (s *Scheduler) downstreamNote(name string) string {
	down, err := steps.Downstream(s.stages, name)
	if err != nil || len(down) == 0 {
		return ""
	}
	return "; downstream skips " + strings.Join(down, ", ")
}

func (s *Scheduler) stageEnabled(def steps.StepDefinition) bool {
	return def.Flag == "" || s.enabled(def.Flag)
}

func (s *Scheduler) record(ctx context.Context, jobID string, seq int, t Transition) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, jobID, seq, t); err != nil {
		s.printer.Warning(jobID, "failed to record %s transition: %v", t.Stage, err)
	}
}

// hasContent reports whether an artifact holds at least one record. A
// positive table with only its header counts as empty.
func hasContent(kind artifacts.Kind, path string) bool {
	if kind == artifacts.KindPositive {
		n, err := seqio.CountPositive(path)
		return err == nil && n > 0
	}
	return artifacts.NonEmpty(path)
}

package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jonathan/nsa-pipeline/internal/artifacts"
)

// BarcodeJob identifies one barcode's pass through the stage chain. It is
// immutable once created.
type BarcodeJob struct {
	Prefix  string
	Index   int
	RefBase string
	Threads int
	MinLen  int
}

// Barcode returns the two-digit zero-padded barcode
func (j BarcodeJob) Barcode() string {
	return fmt.Sprintf("%02d", j.Index)
}

// ArtifactID returns the key used to resolve this job's artifact paths
func (j BarcodeJob) ArtifactID() artifacts.JobID {
	return artifacts.JobID{Prefix: j.Prefix, Barcode: j.Barcode(), RefBase: j.RefBase}
}

// ID returns the label printed with every progress line and warning, e.g. "P.01"
func (j BarcodeJob) ID() string {
	return j.ArtifactID().String()
}

func (j BarcodeJob) threads() string {
	return strconv.Itoa(j.Threads)
}

// Outcome is the transition a stage takes when the scheduler reaches it
type Outcome string

// Transition outcomes. Values match the stored db outcome strings.
const (
	Executed            Outcome = "executed"
	Reused              Outcome = "reused"
	SkippedDisabled     Outcome = "skipped_disabled"
	SkippedMissingInput Outcome = "skipped_missing_input"
	Failed              Outcome = "failed"
)

// Transition records what happened to one stage of a job
type Transition struct {
	Stage    string
	Category string
	Outcome  Outcome
	// Reason explains a skip or failure; Detail summarizes an execution.
	Reason   string
	Detail   string
	Duration time.Duration
}

// JobResult holds every transition of one finished job, in stage order
type JobResult struct {
	Job         BarcodeJob
	Transitions []Transition
}

// Outcome returns the outcome recorded for stage, or "" when the job never reached it
func (r JobResult) Outcome(stage string) Outcome {
	for _, t := range r.Transitions {
		if t.Stage == stage {
			return t.Outcome
		}
	}
	return ""
}

package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Outcome constants mirror the stage state machine transitions
const (
	OutcomeExecuted            = "executed"
	OutcomeReused              = "reused"
	OutcomeSkippedDisabled     = "skipped_disabled"
	OutcomeSkippedMissingInput = "skipped_missing_input"
	OutcomeFailed              = "failed"
)

var validOutcomes = map[string]bool{
	OutcomeExecuted:            true,
	OutcomeReused:              true,
	OutcomeSkippedDisabled:     true,
	OutcomeSkippedMissingInput: true,
	OutcomeFailed:              true,
}

// RunStatusFor maps the final error of a run to its stored status.
func RunStatusFor(err error) string {
	if err != nil {
		return RunStatusFailed
	}
	return RunStatusCompleted
}

// Run represents a pipeline run record
type Run struct {
	ID          uuid.UUID      `json:"id"`
	Prefix      string         `json:"prefix"`
	RefBase     string         `json:"refbase"`
	Start       int            `json:"start_barcode"`
	End         int            `json:"end_barcode"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// RunInput represents input for creating a run
type RunInput struct {
	Prefix     string
	RefBase    string
	Start      int
	End        int
	Parameters map[string]any
}

// Transition represents one recorded stage outcome for a barcode job
type Transition struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	JobID      string    `json:"job_id"`
	Seq        int       `json:"seq"`
	Stage      string    `json:"stage"`
	Category   string    `json:"category"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TransitionInput represents input for recording a transition
type TransitionInput struct {
	JobID      string
	Seq        int
	Stage      string
	Category   string
	Outcome    string
	Reason     string
	DurationMs int64
}

// Validate rejects inputs the stage_transitions table would not accept
func (in *TransitionInput) Validate() error {
	if in.JobID == "" || in.Stage == "" {
		return fmt.Errorf("transition requires job id and stage")
	}
	if !validOutcomes[in.Outcome] {
		return fmt.Errorf("unknown transition outcome: %q", in.Outcome)
	}
	return nil
}

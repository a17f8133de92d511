package pipeline

import "fmt"

// StageError represents a fatal failure of one stage in a barcode job
type StageError struct {
	JobID   string
	Stage   string
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stage %s failed for %s: %s: %v", e.Stage, e.JobID, e.Message, e.Cause)
	}
	return fmt.Sprintf("stage %s failed for %s: %s", e.Stage, e.JobID, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// PreflightError represents a startup check that failed before any job ran
type PreflightError struct {
	Message string
	Cause   error
}

func (e *PreflightError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("preflight failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("preflight failed: %s", e.Message)
}

func (e *PreflightError) Unwrap() error {
	return e.Cause
}

package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/nsa-pipeline/internal/db"
)

// dbRecorder stores transitions under one pipeline run
type dbRecorder struct {
	database *db.DB
	runID    uuid.UUID
}

func (r *dbRecorder) Record(ctx context.Context, jobID string, seq int, t Transition) error {
	return r.database.RecordTransition(ctx, r.runID, transitionInput(jobID, seq, t))
}

func transitionInput(jobID string, seq int, t Transition) *db.TransitionInput {
	reason := t.Reason
	if reason == "" {
		reason = t.Detail
	}
	return &db.TransitionInput{
		JobID:      jobID,
		Seq:        seq,
		Stage:      t.Stage,
		Category:   t.Category,
		Outcome:    string(t.Outcome),
		Reason:     reason,
		DurationMs: t.Duration.Milliseconds(),
	}
}

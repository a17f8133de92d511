package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Stage Transition Methods
// -----------------------------------------------------------------------------

// RecordTransition stores the outcome of one stage of one barcode job
func (db *DB) RecordTransition(ctx context.Context, runID uuid.UUID, input *TransitionInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO stage_transitions (run_id, job_id, seq, stage, category, outcome, reason, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id, job_id, stage) DO UPDATE
		 SET seq = EXCLUDED.seq, outcome = EXCLUDED.outcome, reason = EXCLUDED.reason,
		     duration_ms = EXCLUDED.duration_ms, recorded_at = NOW()`,
		runID, input.JobID, input.Seq, input.Stage, input.Category, input.Outcome, nullable(input.Reason), input.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record transition %s/%s: %w", input.JobID, input.Stage, err)
	}
	return nil
}

// ListTransitions returns the transitions of a run in job then stage order,
// optionally restricted to one job ID.
func (db *DB) ListTransitions(ctx context.Context, runID uuid.UUID, jobID string) ([]Transition, error) {
	query, args := transitionQuery(runID, jobID)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var reason *string
		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.JobID, &tr.Seq, &tr.Stage, &tr.Category,
			&tr.Outcome, &reason, &tr.DurationMs, &tr.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if reason != nil {
			tr.Reason = *reason
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func transitionQuery(runID uuid.UUID, jobID string) (string, []any) {
	query := `SELECT id, run_id, job_id, seq, stage, category, outcome, reason, duration_ms, recorded_at
	          FROM stage_transitions
	          WHERE run_id = $1`
	args := []any{runID}
	if jobID != "" {
		query += " AND job_id = $2"
		args = append(args, jobID)
	}
	query += " ORDER BY job_id, seq"
	return query, args
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

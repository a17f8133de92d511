// Package fanout runs independent work units with a bounded number in flight.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrSkipUnit marks a unit failure that must not abort its siblings.
var ErrSkipUnit = errors.New("unit skipped")

// Skip wraps err so Run counts the unit as skipped instead of failing.
func Skip(err error) error {
	if err == nil {
		return ErrSkipUnit
	}
	return fmt.Errorf("%w: %w", ErrSkipUnit, err)
}

// Report summarizes one Run.
type Report struct {
	Scheduled int
	Completed int
	Skipped   int
	// SkipErrors holds the causes of skipped units in completion order.
	SkipErrors []error
}

// Task processes one unit. Returning an error wrapped with Skip records the
// unit as skipped; any other error is fatal.
type Task[U any] func(ctx context.Context, unit U) error

// Run executes task for every unit with at most limit units in flight. A
// fatal error cancels the context passed to in-flight tasks, stops further
// scheduling and is returned once running units have finished.
func Run[U any](ctx context.Context, units []U, limit int, task Task[U]) (Report, error) {
	if limit < 1 {
		limit = 1
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var completed, skipped atomic.Int64
	skipErrs := make(chan error, len(units))
	scheduled := 0

	for _, unit := range units {
		if gCtx.Err() != nil {
			break
		}
		scheduled++
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			err := task(gCtx, unit)
			switch {
			case err == nil:
				completed.Add(1)
				return nil
			case errors.Is(err, ErrSkipUnit):
				skipped.Add(1)
				skipErrs <- err
				return nil
			default:
				return err
			}
		})
	}

	err := g.Wait()
	close(skipErrs)

	report := Report{
		Scheduled: scheduled,
		Completed: int(completed.Load()),
		Skipped:   int(skipped.Load()),
	}
	for e := range skipErrs {
		report.SkipErrors = append(report.SkipErrors, e)
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return report, err
}

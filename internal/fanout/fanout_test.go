package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestRun_RespectsLimit(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int64

	report, err := Run(context.Background(), units(40), limit, func(ctx context.Context, _ int) error {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Equal(t, 40, report.Scheduled)
	assert.Equal(t, 40, report.Completed)
	assert.Zero(t, report.Skipped)
}

func TestRun_EachUnitOnce(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]int)

	_, err := Run(context.Background(), units(200), 8, func(ctx context.Context, u int) error {
		mu.Lock()
		seen[u]++
		mu.Unlock()
		return nil
	})

	require.NoError(t, err)
	assert.Len(t, seen, 200)
	for u, n := range seen {
		assert.Equal(t, 1, n, "unit %d", u)
	}
}

func TestRun_SkipDoesNotAbortSiblings(t *testing.T) {
	report, err := Run(context.Background(), units(10), 2, func(ctx context.Context, u int) error {
		if u%3 == 0 {
			return Skip(errors.New("yass produced no output"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 10, report.Scheduled)
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, 6, report.Completed)
	require.Len(t, report.SkipErrors, 4)
	for _, e := range report.SkipErrors {
		assert.ErrorIs(t, e, ErrSkipUnit)
		assert.Contains(t, e.Error(), "no output")
	}
}

func TestRun_FatalErrorStopsScheduling(t *testing.T) {
	boom := errors.New("cannot write id map")
	var started atomic.Int64

	report, err := Run(context.Background(), units(1000), 1, func(ctx context.Context, u int) error {
		started.Add(1)
		if u == 2 {
			return boom
		}
		return nil
	})

	require.ErrorIs(t, err, boom)
	assert.Less(t, started.Load(), int64(1000))
	assert.Equal(t, 2, report.Completed)
	assert.Less(t, report.Scheduled, 1000)
}

func TestRun_LimitBelowOneRunsSerially(t *testing.T) {
	var inFlight, peak atomic.Int64
	_, err := Run(context.Background(), units(5), 0, func(ctx context.Context, _ int) error {
		cur := inFlight.Add(1)
		if cur > peak.Load() {
			peak.Store(cur)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), peak.Load())
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, units(5), 2, func(ctx context.Context, _ int) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Completed)
}

func TestRun_NoUnits(t *testing.T) {
	report, err := Run[string](context.Background(), nil, 4, func(ctx context.Context, _ string) error {
		t.Fatal("task must not run")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.com/rogov-ks/integrator/pipeline"
	"gitlab.com/rogov-ks/integrator/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastPipeline(mode pipeline.Mode, n int) pipeline.Options {
	return pipeline.Options{
		TaskCount:         n,
		Mode:              mode,
		GenerateInterval:  time.Millisecond,
		IntegrateInterval: 2 * time.Millisecond,
		IdleBackoff:       time.Millisecond,
		IdleBackoffMax:    4 * time.Millisecond,
		Seed:              1,
	}
}

var ignoreVolatile = cmpopts.IgnoreFields(Report{}, "RunID", "Elapsed")

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	for _, cfg := range []Config{
		{Deadline: 0, PollInterval: time.Second, Grace: time.Second},
		{Deadline: time.Second, PollInterval: -1, Grace: time.Second},
		{Deadline: time.Second, PollInterval: time.Second},
	} {
		_, err := New(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestRun_Completes(t *testing.T) {
	for _, mode := range []pipeline.Mode{pipeline.ModeSharedSlot, pipeline.ModeChannel} {
		t.Run(string(mode), func(t *testing.T) {
			var (
				mu        sync.Mutex
				snapshots []task.Counts
			)
			o, err := New(Config{Deadline: 10 * time.Second, PollInterval: 2 * time.Millisecond, Grace: time.Second},
				WithLogger(zaptest.NewLogger(t)),
				WithProgress(func(c task.Counts) {
					mu.Lock()
					defer mu.Unlock()
					snapshots = append(snapshots, c)
				}),
			)
			require.NoError(t, err)

			report, err := o.Run(context.Background(), fastPipeline(mode, 10))
			require.NoError(t, err)

			want := &Report{
				Mode:   mode,
				Counts: task.Counts{Total: 10, Generated: 10, Processed: 10},
			}
			if diff := cmp.Diff(want, report, ignoreVolatile); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
			require.NoError(t, report.Check())
			require.NotEqual(t, "00000000-0000-0000-0000-000000000000", report.RunID.String())

			mu.Lock()
			defer mu.Unlock()
			for _, c := range snapshots {
				require.NoError(t, c.Check())
			}

			counts, err := o.Progress(context.Background())
			require.NoError(t, err)
			require.Equal(t, report.Counts, counts)
		})
	}
}

func TestRun_DeadlineCancels(t *testing.T) {
	clock := clockwork.NewFakeClock()
	core, logs := observer.New(zapcore.InfoLevel)

	cfg := Config{Deadline: time.Minute, PollInterval: time.Second, Grace: 5 * time.Second}
	o, err := New(cfg, WithClock(clock), WithLogger(zap.New(core)))
	require.NoError(t, err)

	opts := fastPipeline(pipeline.ModeSharedSlot, 1000)
	opts.GenerateInterval = 10 * time.Millisecond
	opts.IntegrateInterval = 10 * time.Millisecond

	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := o.Run(context.Background(), opts)
		done <- result{report, err}
	}()

	var res result
	require.Eventually(t, func() bool {
		clock.Advance(cfg.Deadline)
		select {
		case res = <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, res.err)
	report := res.report

	require.True(t, report.DeadlineExceeded)
	require.True(t, report.Cancelled)
	require.False(t, report.TimedOut)
	require.NoError(t, report.Check())
	require.Less(t, report.Counts.Processed, 1000)
	require.Equal(t, 1, logs.FilterMessage("deadline exceeded, cancelling").Len())
	require.Contains(t, report.String(), "deadline exceeded")
}

func TestRun_ParentCancel(t *testing.T) {
	o, err := New(Config{Deadline: time.Hour, PollInterval: 5 * time.Millisecond, Grace: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	report, err := o.Run(ctx, fastPipeline(pipeline.ModeChannel, 10000))
	require.NoError(t, err)
	require.True(t, report.Cancelled)
	require.False(t, report.DeadlineExceeded)
	require.NoError(t, report.Check())
}

func TestRun_InvalidPipelineOptions(t *testing.T) {
	o, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = o.Run(context.Background(), pipeline.Options{})
	require.ErrorIs(t, err, pipeline.ErrInvalidOptions)

	_, err = o.Progress(context.Background())
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestReport_Check(t *testing.T) {
	ok := &Report{Counts: task.Counts{Total: 5, Generated: 3, Processed: 2}}
	require.NoError(t, ok.Check())
	require.Contains(t, ok.String(), "check:      ok")

	violation := &task.InvariantError{Reason: "test", Counts: task.Counts{Total: 1, Generated: 1, Processed: 2}}
	bad := &Report{
		Counts:     task.Counts{Total: 5, Generated: 3, Processed: 4},
		TimedOut:   true,
		Violations: []error{violation},
	}
	err := bad.Check()
	require.ErrorIs(t, err, task.ErrInvariantViolation)
	require.ErrorIs(t, err, ErrJoinTimeout)

	var inv *task.InvariantError
	require.True(t, errors.As(err, &inv))
	require.Contains(t, bad.String(), "FAILED")
}

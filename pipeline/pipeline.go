// Package pipeline runs a generator and an integrator of random
// integration tasks side by side and lets the caller observe, cancel and
// join them.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.com/rogov-ks/integrator/task"
)

type runner interface {
	generate(ctx context.Context) error
	consume(ctx context.Context) error
	progress(ctx context.Context) (task.Counts, error)
}

// Pipeline is a handle to one running generator/integrator pair.
type Pipeline struct {
	id     uuid.UUID
	env    *env
	runner runner

	parent context.Context
	cancel context.CancelFunc

	group           *errgroup.Group
	done            chan struct{}
	err             error
	cancelRequested atomic.Bool
}

// Result is the outcome of Await.
type Result struct {
	Counts task.Counts
	// TimedOut is set when the workers were still running after the timeout.
	TimedOut bool
	// Cancelled is set when the run was cancelled by Cancel or by the parent
	// context.
	Cancelled bool
	Err       error
}

// Start validates opts and launches both workers. The workers stop when all
// tasks are processed, when Cancel is called or when ctx is done.
func Start(ctx context.Context, opts Options, options ...Option) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("pipeline: generate run id: %w", err)
	}

	e := newEnv(opts, options...)
	e.log = e.log.With(zap.Stringer("run", id), zap.String("mode", string(opts.Mode)))

	var r runner
	switch opts.Mode {
	case ModeSharedSlot:
		r, err = newSharedSlot(e)
		if err != nil {
			return nil, err
		}
	case ModeChannel:
		r = newChannelRun(e)
	}

	e.log.Info("pipeline started", zap.Int("task_count", opts.TaskCount))
	return launch(ctx, id, e, r), nil
}

// launch runs both workers of r in one errgroup. An error from either worker
// cancels the other; so does a generator that returns before publishing
// every task, since the integrator would wait for tasks that never come.
func launch(ctx context.Context, id uuid.UUID, e *env, r runner) *Pipeline {
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	p := &Pipeline{
		id:     id,
		env:    e,
		runner: r,
		parent: ctx,
		cancel: cancel,
		group:  group,
		done:   make(chan struct{}),
	}

	group.Go(func() error {
		err := r.generate(groupCtx)
		if err == nil && groupCtx.Err() == nil {
			counts, perr := r.progress(groupCtx)
			if perr == nil && counts.Generated < counts.Total {
				e.log.Warn("generator stopped early, stopping integrator", zap.Stringer("counts", counts))
				cancel()
			}
		}
		return err
	})
	group.Go(func() error { return r.consume(groupCtx) })

	go func() {
		p.err = group.Wait()
		cancel()
		close(p.done)
	}()
	return p
}

func (p *Pipeline) ID() uuid.UUID { return p.id }

// Done is closed once both workers have returned.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Progress returns a consistent snapshot of the counters.
func (p *Pipeline) Progress(ctx context.Context) (task.Counts, error) {
	return p.runner.progress(ctx)
}

// Cancel asks both workers to stop at their next check point. It does not
// wait for them; use Await for that. Cancel is idempotent.
func (p *Pipeline) Cancel() {
	if p.cancelRequested.CompareAndSwap(false, true) {
		p.env.log.Info("cancellation requested")
	}
	p.cancel()
}

// Await waits up to timeout for both workers to finish and reports the
// final counters.
func (p *Pipeline) Await(timeout time.Duration) Result {
	var res Result
	select {
	case <-p.done:
		res.Err = p.err
	case <-p.env.clock.After(timeout):
		res.TimedOut = true
		p.env.log.Warn("workers did not finish in time", zap.Duration("timeout", timeout))
	}
	res.Cancelled = p.cancelRequested.Load() || p.parent.Err() != nil

	ctx := context.Background()
	if res.TimedOut {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	counts, err := p.Progress(ctx)
	if err != nil && res.Err == nil {
		res.Err = fmt.Errorf("pipeline: read final counts: %w", err)
	}
	res.Counts = counts
	return res
}

// Violations returns the invariant violations observed so far.
func (p *Pipeline) Violations() []error { return p.env.collectedViolations() }

// Failures returns how many integrations failed so far.
func (p *Pipeline) Failures() int64 { return p.env.failures.Load() }

package pipeline

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"gitlab.com/rogov-ks/integrator/function"
	"gitlab.com/rogov-ks/integrator/rwlock"
	"gitlab.com/rogov-ks/integrator/task"
)

const (
	minStep      = 1e-3
	fallbackStep = 0.01
)

// env is everything the two workers of a run share apart from the task
// handoff itself.
type env struct {
	opts      Options
	log       *zap.Logger
	clock     clockwork.Clock
	integrate IntegrateFunc
	metrics   *Metrics

	failures atomic.Int64

	mu         sync.Mutex
	violations []error
}

func newEnv(opts Options, options ...Option) *env {
	e := &env{
		opts:      opts,
		log:       zap.NewNop(),
		clock:     clockwork.NewRealClock(),
		integrate: function.Integrate,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// reportViolation logs err and keeps it for the final report.
func (e *env) reportViolation(log *zap.Logger, err error) {
	log.Error("invariant violation", zap.Error(err))
	e.metrics.invariantViolated()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.violations = append(e.violations, err)
}

func (e *env) collectedViolations() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.violations...)
}

// stopped logs why a worker loop ends early. Cancellation is the normal
// shutdown path, not a failure.
func (e *env) stopped(log *zap.Logger, worker string, err error) {
	if errors.Is(err, rwlock.ErrLockCancelled) {
		e.metrics.lockCancelled(worker)
	}
	log.Info("worker cancelled", zap.Error(err))
}

// integrateTask runs one integration outside of any lock. A failed or
// panicking integration is logged and counted; it never stops the worker.
func (e *env) integrateTask(log *zap.Logger, p task.Params) {
	start := e.clock.Now()
	value, err := e.safeIntegrate(p)
	e.metrics.observeIntegration(e.clock.Since(start))

	if err != nil {
		e.failures.Add(1)
		e.metrics.integrationFailed()
		log.Warn("integration failed",
			zap.Int("seq", p.Seq),
			zap.String("function", fmt.Sprint(p.Function)),
			zap.Error(err),
		)
		return
	}
	log.Debug("task integrated",
		zap.Int("seq", p.Seq),
		zap.Float64("left", p.Left),
		zap.Float64("right", p.Right),
		zap.Float64("step", p.Step),
		zap.Float64("result", value),
	)
}

func (e *env) safeIntegrate(p task.Params) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("integrate panicked: %v", r)
		}
	}()
	return e.integrate(p.Function, p.Left, p.Right, p.Step)
}

// paramSource fabricates random integration tasks.
type paramSource struct {
	rng *rand.Rand
}

func newParamSource(seed uint64) *paramSource {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &paramSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// next returns task number seq: a logarithm with a base in (1, 10),
// left bound in [0.1, 100), right bound in [100, 200) and step in (0, 1).
func (s *paramSource) next(seq int) (task.Params, error) {
	base := 1 + s.rng.Float64()*9
	if math.Abs(base-1) < 1e-10 {
		base = 1.1
	}
	left := s.rng.Float64()*99.9 + 0.1
	right := 100 + s.rng.Float64()*100
	step := s.rng.Float64()
	if step < minStep {
		step = fallbackStep
	}

	f, err := function.NewLog(base)
	if err != nil {
		return task.Params{}, err
	}
	return task.Params{Function: f, Left: left, Right: right, Step: step, Seq: seq}, nil
}

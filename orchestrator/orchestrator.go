// Package orchestrator drives one pipeline run: it polls progress, enforces a
// soft deadline and produces the final consistency report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"gitlab.com/rogov-ks/integrator/pipeline"
	"gitlab.com/rogov-ks/integrator/task"
)

var (
	ErrInvalidConfig = errors.New("orchestrator: invalid config")
	ErrNotRunning    = errors.New("orchestrator: no run in progress")
	ErrJoinTimeout   = errors.New("orchestrator: workers did not stop within the grace period")
)

// Config holds the orchestrator timings.
type Config struct {
	// Deadline is a soft limit: once it passes the run is cancelled.
	Deadline     time.Duration `yaml:"deadline"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Grace bounds how long the workers may take to stop.
	Grace time.Duration `yaml:"grace"`
}

func DefaultConfig() Config {
	return Config{
		Deadline:     30 * time.Second,
		PollInterval: 500 * time.Millisecond,
		Grace:        5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.Deadline <= 0 || c.PollInterval <= 0 || c.Grace <= 0 {
		return fmt.Errorf("%w: deadline, poll interval and grace must be positive", ErrInvalidConfig)
	}
	return nil
}

// Report is the outcome of Run.
type Report struct {
	RunID            uuid.UUID
	Mode             pipeline.Mode
	Counts           task.Counts
	DeadlineExceeded bool
	Cancelled        bool
	TimedOut         bool
	Failures         int64
	Violations       []error
	Elapsed          time.Duration
}

// Check returns an error when the run ended in an inconsistent state or its
// workers could not be joined.
func (r *Report) Check() error {
	errs := append([]error(nil), r.Violations...)
	if err := r.Counts.Check(); err != nil {
		errs = append(errs, err)
	}
	if r.TimedOut {
		errs = append(errs, ErrJoinTimeout)
	}
	return errors.Join(errs...)
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s)\n", r.RunID, r.Mode)
	fmt.Fprintf(&b, "  generated:  %d/%d\n", r.Counts.Generated, r.Counts.Total)
	fmt.Fprintf(&b, "  processed:  %d/%d\n", r.Counts.Processed, r.Counts.Total)
	fmt.Fprintf(&b, "  failures:   %d\n", r.Failures)
	fmt.Fprintf(&b, "  violations: %d\n", len(r.Violations))
	fmt.Fprintf(&b, "  elapsed:    %s\n", r.Elapsed.Round(time.Millisecond))
	switch {
	case r.DeadlineExceeded:
		b.WriteString("  status:     deadline exceeded, cancelled\n")
	case r.Cancelled:
		b.WriteString("  status:     cancelled\n")
	default:
		b.WriteString("  status:     finished\n")
	}
	if err := r.Check(); err != nil {
		fmt.Fprintf(&b, "  check:      FAILED: %v", err)
	} else {
		b.WriteString("  check:      ok (processed <= generated <= total)")
	}
	return b.String()
}

type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = logger }
}

// WithClock sets the clock of the poll ticker and the deadline timer. The
// pipeline keeps its own clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithPipelineOptions passes options through to pipeline.Start.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(o *Orchestrator) { o.pipelineOptions = append(o.pipelineOptions, opts...) }
}

// WithProgress registers a callback invoked with every polled snapshot.
func WithProgress(fn func(task.Counts)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

type Orchestrator struct {
	cfg             Config
	log             *zap.Logger
	clock           clockwork.Clock
	pipelineOptions []pipeline.Option
	onProgress      func(task.Counts)

	current atomic.Pointer[pipeline.Pipeline]
}

func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:   cfg,
		log:   zap.NewNop(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Progress reads the counters of the run in progress.
func (o *Orchestrator) Progress(ctx context.Context) (task.Counts, error) {
	p := o.current.Load()
	if p == nil {
		return task.Counts{}, ErrNotRunning
	}
	return p.Progress(ctx)
}

// Run starts a pipeline and blocks until it finishes, the deadline passes or
// ctx is done. Only start-up errors are returned; everything observed during
// the run ends up in the report.
func (o *Orchestrator) Run(ctx context.Context, opts pipeline.Options) (*Report, error) {
	start := o.clock.Now()
	p, err := pipeline.Start(ctx, opts, o.pipelineOptions...)
	if err != nil {
		return nil, err
	}
	o.current.Store(p)

	log := o.log.With(zap.Stringer("run", p.ID()))
	report := &Report{RunID: p.ID(), Mode: opts.Mode}

	ticker := o.clock.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	deadline := o.clock.NewTimer(o.cfg.Deadline)
	defer deadline.Stop()

	var snapshotViolations []error
loop:
	for {
		select {
		case <-p.Done():
			break loop
		case <-ticker.Chan():
			counts, err := o.poll(ctx, p)
			if err != nil {
				log.Debug("progress poll skipped", zap.Error(err))
				continue
			}
			log.Info("progress",
				zap.Int("generated", counts.Generated),
				zap.Int("processed", counts.Processed),
				zap.Int("total", counts.Total),
			)
			if err := counts.Check(); err != nil {
				log.Error("invariant violation", zap.Error(err))
				snapshotViolations = append(snapshotViolations, err)
			}
			if o.onProgress != nil {
				o.onProgress(counts)
			}
		case <-deadline.Chan():
			report.DeadlineExceeded = true
			log.Warn("deadline exceeded, cancelling", zap.Duration("deadline", o.cfg.Deadline))
			p.Cancel()
			break loop
		case <-ctx.Done():
			log.Info("run interrupted", zap.Error(ctx.Err()))
			p.Cancel()
			break loop
		}
	}

	res := p.Await(o.cfg.Grace)
	report.Counts = res.Counts
	report.Cancelled = res.Cancelled
	report.TimedOut = res.TimedOut
	report.Failures = p.Failures()
	report.Violations = append(p.Violations(), snapshotViolations...)
	report.Elapsed = o.clock.Since(start)
	if res.Err != nil {
		log.Error("pipeline finished with error", zap.Error(res.Err))
	}

	if err := report.Check(); err != nil {
		log.Error("final check failed", zap.Error(err))
	} else {
		log.Info("run finished",
			zap.Int("generated", report.Counts.Generated),
			zap.Int("processed", report.Counts.Processed),
			zap.Int64("failures", report.Failures),
			zap.Bool("deadline_exceeded", report.DeadlineExceeded),
			zap.Duration("elapsed", report.Elapsed),
		)
	}
	return report, nil
}

// poll bounds a single read by the poll interval so a stuck lock never stalls
// the loop.
func (o *Orchestrator) poll(ctx context.Context, p *pipeline.Pipeline) (task.Counts, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PollInterval)
	defer cancel()
	return p.Progress(ctx)
}

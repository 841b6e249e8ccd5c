package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"gitlab.com/rogov-ks/integrator/function"
)

// Mode selects how tasks travel from the generator to the integrator.
type Mode string

const (
	// ModeSharedSlot publishes every task into one shared slot guarded by
	// rwlock.RWLock. A task the integrator has not read yet can be
	// overwritten by the next one.
	ModeSharedSlot Mode = "shared-slot"
	// ModeChannel sends immutable task snapshots over a channel of capacity
	// one. The generator stalls until the integrator takes the task.
	ModeChannel Mode = "channel"
)

var ErrInvalidOptions = errors.New("pipeline: invalid options")

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSharedSlot, ModeChannel:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q, expected %q or %q", ErrInvalidOptions, s, ModeSharedSlot, ModeChannel)
	}
}

// UnmarshalYAML rejects unknown modes while the config is decoded.
func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Options configure one pipeline run.
type Options struct {
	TaskCount         int           `yaml:"task_count"`
	Mode              Mode          `yaml:"mode"`
	GenerateInterval  time.Duration `yaml:"generate_interval"`
	IntegrateInterval time.Duration `yaml:"integrate_interval"`
	IdleBackoff       time.Duration `yaml:"idle_backoff"`
	IdleBackoffMax    time.Duration `yaml:"idle_backoff_max"`
	// Seed of the task generator; zero picks a random seed.
	Seed uint64 `yaml:"seed"`
}

// DefaultOptions returns the options of the reference demo run.
func DefaultOptions() Options {
	return Options{
		TaskCount:         100,
		Mode:              ModeSharedSlot,
		GenerateInterval:  30 * time.Millisecond,
		IntegrateInterval: 50 * time.Millisecond,
		IdleBackoff:       10 * time.Millisecond,
		IdleBackoffMax:    80 * time.Millisecond,
	}
}

func (o Options) Validate() error {
	switch {
	case o.TaskCount <= 0:
		return fmt.Errorf("%w: task count must be positive, got %d", ErrInvalidOptions, o.TaskCount)
	case o.GenerateInterval <= 0 || o.IntegrateInterval <= 0:
		return fmt.Errorf("%w: throttle intervals must be positive", ErrInvalidOptions)
	case o.IdleBackoff <= 0 || o.IdleBackoffMax < o.IdleBackoff:
		return fmt.Errorf("%w: idle backoff must satisfy 0 < min <= max", ErrInvalidOptions)
	}
	_, err := ParseMode(string(o.Mode))
	return err
}

// IntegrateFunc evaluates one integration task.
type IntegrateFunc func(f function.Function, left, right, step float64) (float64, error)

// Option wires a collaborator into the pipeline.
type Option func(*env)

func WithLogger(logger *zap.Logger) Option {
	return func(e *env) { e.log = logger }
}

func WithClock(clock clockwork.Clock) Option {
	return func(e *env) { e.clock = clock }
}

// WithIntegrate replaces function.Integrate.
func WithIntegrate(fn IntegrateFunc) Option {
	return func(e *env) { e.integrate = fn }
}

func WithMetrics(m *Metrics) Option {
	return func(e *env) { e.metrics = m }
}

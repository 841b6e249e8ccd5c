package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

var ErrInvalidInterval = errors.New("throttle: interval must be positive")

// Pacer suspends the caller for a fixed interval between iterations.
type Pacer struct {
	clock    clockwork.Clock
	interval time.Duration
}

// NewPacer returns pacer that pauses for interval on every Wait.
func NewPacer(clock clockwork.Clock, interval time.Duration) (*Pacer, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Pacer{clock: clock, interval: interval}, nil
}

// Wait blocks for the pacer interval or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return sleep(ctx, p.clock, p.interval)
}

func (p *Pacer) Interval() time.Duration { return p.interval }

// Backoff is a bounded exponential pause: every Wait doubles the next delay
// up to max, Reset returns it to min.
type Backoff struct {
	clock    clockwork.Clock
	min, max time.Duration
	next     time.Duration
}

// NewBackoff returns backoff starting at min and capped at max.
func NewBackoff(clock clockwork.Clock, min, max time.Duration) (*Backoff, error) {
	if min <= 0 || max < min {
		return nil, ErrInvalidInterval
	}
	return &Backoff{clock: clock, min: min, max: max, next: min}, nil
}

// Wait blocks for the current delay or until ctx is done, then grows the delay.
func (b *Backoff) Wait(ctx context.Context) error {
	d := b.next
	// удваиваем до потолка
	b.next = min(2*b.next, b.max)
	return sleep(ctx, b.clock, d)
}

// Next returns the delay the following Wait will use.
func (b *Backoff) Next() time.Duration { return b.next }

func (b *Backoff) Reset() { b.next = b.min }

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

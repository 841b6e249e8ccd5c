package task

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// ErrInvariantViolation marks an observed state that breaks
// 0 <= processed <= generated <= total, or a disagreement between a worker's
// own bookkeeping and the shared counters. It always points at a
// synchronization bug and is reported, never corrected.
var ErrInvariantViolation = errors.New("task: invariant violation")

// Counts is a snapshot of the run counters.
type Counts struct {
	Total     int `json:"total"`
	Generated int `json:"generated"`
	Processed int `json:"processed"`
}

// Done reports whether every task has been generated and processed.
func (c Counts) Done() bool {
	return c.Generated == c.Total && c.Processed == c.Total
}

// Check verifies 0 <= processed <= generated <= total.
func (c Counts) Check() error {
	if !nonDecreasing(0, c.Processed, c.Generated, c.Total) {
		return &InvariantError{Reason: "expected 0 <= processed <= generated <= total", Counts: c}
	}
	return nil
}

func (c Counts) String() string {
	return fmt.Sprintf("generated %d/%d, processed %d/%d", c.Generated, c.Total, c.Processed, c.Total)
}

// InvariantError describes an invariant violation together with the counters
// observed at the time.
type InvariantError struct {
	Reason string
	Counts Counts
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s (%s)", e.Reason, e.Counts)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

func nonDecreasing[T constraints.Ordered](vals ...T) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i-1] > vals[i] {
			return false
		}
	}
	return true
}

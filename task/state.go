// Package task holds the state shared between the task generator and the
// integrator.
//
// State has no synchronization of its own. Every method must be called while
// the caller holds the guarding lock: read mode for getters, write mode for
// setters and increments.
package task

import (
	"errors"
	"fmt"

	"gitlab.com/rogov-ks/integrator/function"
)

// ErrInvalidTaskCount is returned by NewState for a non-positive task count.
var ErrInvalidTaskCount = errors.New("task: task count must be positive")

// Params is one integration task. The four fields form a single tuple and are
// always read and written together.
type Params struct {
	Function function.Function
	Left     float64
	Right    float64
	Step     float64
	// Seq is the 1-based number of the task within its run.
	Seq int
}

// State is the single-slot task buffer plus the run counters.
type State struct {
	params    Params
	taskCount int
	generated int
	processed int
}

// NewState creates a State for a run of taskCount tasks.
func NewState(taskCount int) (*State, error) {
	if taskCount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTaskCount, taskCount)
	}
	return &State{taskCount: taskCount}, nil
}

func (s *State) Function() function.Function     { return s.params.Function }
func (s *State) SetFunction(f function.Function) { s.params.Function = f }
func (s *State) LeftBound() float64              { return s.params.Left }
func (s *State) SetLeftBound(v float64)          { s.params.Left = v }
func (s *State) RightBound() float64             { return s.params.Right }
func (s *State) SetRightBound(v float64)         { s.params.Right = v }
func (s *State) Step() float64                   { return s.params.Step }
func (s *State) SetStep(v float64)               { s.params.Step = v }
func (s *State) TaskCount() int                  { return s.taskCount }
func (s *State) Generated() int                  { return s.generated }
func (s *State) Processed() int                  { return s.processed }

// Params returns the current task as one value.
func (s *State) Params() Params { return s.params }

// SetParams replaces the current task. An unread task is overwritten.
func (s *State) SetParams(p Params) { s.params = p }

// Counts returns the run counters.
func (s *State) Counts() Counts {
	return Counts{Total: s.taskCount, Generated: s.generated, Processed: s.processed}
}

// IncrementGenerated records a published task and returns the new count.
// It refuses to go past the task count.
func (s *State) IncrementGenerated() (int, error) {
	if s.generated >= s.taskCount {
		return s.generated, &InvariantError{Reason: "generated would exceed task count", Counts: s.Counts()}
	}
	s.generated++
	return s.generated, nil
}

// IncrementProcessed records a completed task and returns the new count.
// It refuses to go past the generated count.
func (s *State) IncrementProcessed() (int, error) {
	if s.processed >= s.generated {
		return s.processed, &InvariantError{Reason: "processed would exceed generated", Counts: s.Counts()}
	}
	s.processed++
	return s.processed, nil
}

package function

import (
	"errors"
	"fmt"
	"math"
)

// ErrDomain marks integration requests that cannot be evaluated for the
// given function and bounds.
var ErrDomain = errors.New("function: integration domain error")

// ErrNotConverged is returned by IntegrateWithPrecision when the requested
// precision is not reached within the halving budget.
var ErrNotConverged = errors.New("function: integration did not converge")

// DomainError describes why an integration request was rejected.
type DomainError struct {
	Left, Right, Step float64
	Reason            string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("integrate [%g, %g] step %g: %s", e.Left, e.Right, e.Step, e.Reason)
}

func (e *DomainError) Unwrap() error { return ErrDomain }

const (
	maxPrecisionIterations = 20
	// потолок числа трапеций на одно интегрирование
	maxIntegrationSteps = 1 << 24
)

// Integrate computes the integral of f over [left, right] with the trapezoid
// rule and the given step. The last segment is shortened to end at right.
//
// Integrate fails with a *DomainError if step is not positive, a bound is
// NaN, left >= right, the interval leaves the domain of f, the step needs more
// than 2^24 segments or vanishes against the float resolution of x, or f is
// undefined at a sampled point.
func Integrate(f Function, left, right, step float64) (float64, error) {
	fail := func(format string, args ...any) (float64, error) {
		return 0, &DomainError{Left: left, Right: right, Step: step, Reason: fmt.Sprintf(format, args...)}
	}

	switch {
	case f == nil:
		return fail("nil function")
	case !(step > 0):
		return fail("step must be positive")
	case math.IsNaN(left) || math.IsNaN(right):
		return fail("bound is NaN")
	case left >= right:
		return fail("left bound must be less than right bound")
	case left < f.LeftBorder() || right > f.RightBorder():
		return fail("interval outside domain [%g, %g]", f.LeftBorder(), f.RightBorder())
	case !((right-left)/step <= maxIntegrationSteps):
		return fail("too many segments, at most %d allowed", maxIntegrationSteps)
	}

	var integral float64
	x := left
	fx := f.Value(x)
	for x < right {
		next := math.Min(x+step, right)
		if next <= x {
			return fail("step %g below float resolution at x=%g", step, x)
		}
		fnext := f.Value(next)
		if math.IsNaN(fx) || math.IsNaN(fnext) {
			return fail("function undefined near x=%g", x)
		}
		integral += (fx + fnext) * (next - x) / 2
		x, fx = next, fnext
	}
	return integral, nil
}

// IntegrateWithPrecision halves the step, starting from a tenth of the
// interval, until two successive estimates differ by less than target.
func IntegrateWithPrecision(f Function, left, right, target float64) (float64, error) {
	if !(target > 0) {
		return 0, fmt.Errorf("%w: target error must be positive, got %v", ErrInvalidArgument, target)
	}

	step := (right - left) / 10
	prev, err := Integrate(f, left, right, step)
	if err != nil {
		return 0, err
	}
	for i := 0; i < maxPrecisionIterations; i++ {
		step /= 2
		cur, err := Integrate(f, left, right, step)
		if err != nil {
			return 0, err
		}
		if math.Abs(cur-prev) < target {
			return cur, nil
		}
		prev = cur
	}
	return prev, fmt.Errorf("%w: precision %v", ErrNotConverged, target)
}

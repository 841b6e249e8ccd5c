package function

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrPointIndex is returned for a point index outside [0, Len()).
	ErrPointIndex = errors.New("function: point index out of range")
	// ErrInappropriatePoint is returned when a change would break the strict
	// ordering of the points or leave fewer than two of them.
	ErrInappropriatePoint = errors.New("function: inappropriate point")
)

// Point is a node of a tabulated function.
type Point struct {
	X, Y float64
}

// Tabulated is a piecewise linear function through points sorted by X.
// Unlike the other functions of the package it can be modified, so it must
// not be changed while another goroutine evaluates it.
type Tabulated struct {
	points []Point
}

// NewTabulated returns the function through points. There must be at least
// two of them with strictly increasing finite X.
func NewTabulated(points []Point) (*Tabulated, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidArgument, len(points))
	}
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) {
			return nil, fmt.Errorf("%w: point %d has x=%v", ErrInvalidArgument, i, p.X)
		}
		if i > 0 && p.X <= points[i-1].X {
			return nil, fmt.Errorf("%w: x must increase, point %d has x=%g after %g", ErrInvalidArgument, i, p.X, points[i-1].X)
		}
	}
	return &Tabulated{points: append([]Point(nil), points...)}, nil
}

// NewTabulatedValues spreads values evenly over [left, right].
func NewTabulatedValues(left, right float64, values []float64) (*Tabulated, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 values, got %d", ErrInvalidArgument, len(values))
	}
	if !(left < right) {
		return nil, fmt.Errorf("%w: left %g must be less than right %g", ErrInvalidArgument, left, right)
	}

	step := (right - left) / float64(len(values)-1)
	points := make([]Point, len(values))
	for i, y := range values {
		points[i] = Point{X: left + float64(i)*step, Y: y}
	}
	// последняя точка ровно на правой границе
	points[len(points)-1].X = right
	return NewTabulated(points)
}

// Tabulate samples f at n evenly spaced points of [left, right], which must
// lie inside the domain of f.
func Tabulate(f Function, left, right float64, n int) (*Tabulated, error) {
	switch {
	case f == nil:
		return nil, fmt.Errorf("%w: nil function", ErrInvalidArgument)
	case n < 2:
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidArgument, n)
	case !(left < right):
		return nil, fmt.Errorf("%w: left %g must be less than right %g", ErrInvalidArgument, left, right)
	case left < f.LeftBorder() || right > f.RightBorder():
		return nil, fmt.Errorf("%w: [%g, %g] outside domain [%g, %g]",
			ErrInvalidArgument, left, right, f.LeftBorder(), f.RightBorder())
	}

	values := make([]float64, n)
	step := (right - left) / float64(n-1)
	for i := range values {
		x := left + float64(i)*step
		if i == n-1 {
			x = right
		}
		values[i] = f.Value(x)
	}
	return NewTabulatedValues(left, right, values)
}

func (t *Tabulated) LeftBorder() float64  { return t.points[0].X }
func (t *Tabulated) RightBorder() float64 { return t.points[len(t.points)-1].X }

// Value interpolates linearly between the neighbouring points. Outside the
// domain it returns NaN.
func (t *Tabulated) Value(x float64) float64 {
	if !(x >= t.LeftBorder() && x <= t.RightBorder()) {
		return math.NaN()
	}
	i := t.search(x)
	if math.Abs(t.points[i].X-x) < eps || i == 0 {
		return t.points[i].Y
	}
	return interpolate(t.points[i-1], t.points[i], x)
}

// search returns the index of the first point with X >= x.
func (t *Tabulated) search(x float64) int {
	return sort.Search(len(t.points), func(i int) bool { return t.points[i].X >= x })
}

func interpolate(a, b Point, x float64) float64 {
	return a.Y + (b.Y-a.Y)*(x-a.X)/(b.X-a.X)
}

func (t *Tabulated) Len() int { return len(t.points) }

// Points returns a copy of the nodes.
func (t *Tabulated) Points() []Point { return append([]Point(nil), t.points...) }

func (t *Tabulated) Point(i int) (Point, error) {
	if err := t.checkIndex(i); err != nil {
		return Point{}, err
	}
	return t.points[i], nil
}

// SetY changes the value at node i.
func (t *Tabulated) SetY(i int, y float64) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	t.points[i].Y = y
	return nil
}

// SetPoint replaces node i. The new X must stay strictly between the X of
// the neighbours.
func (t *Tabulated) SetPoint(i int, p Point) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	if (i > 0 && p.X <= t.points[i-1].X) || (i < len(t.points)-1 && p.X >= t.points[i+1].X) || math.IsNaN(p.X) {
		return fmt.Errorf("%w: x=%g breaks the ordering at index %d", ErrInappropriatePoint, p.X, i)
	}
	t.points[i] = p
	return nil
}

// Add inserts p keeping the points sorted. A point with the same X is an
// error.
func (t *Tabulated) Add(p Point) error {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) {
		return fmt.Errorf("%w: x=%v", ErrInappropriatePoint, p.X)
	}
	i := t.search(p.X)
	if i < len(t.points) && math.Abs(t.points[i].X-p.X) < eps {
		return fmt.Errorf("%w: point with x=%g already exists", ErrInappropriatePoint, p.X)
	}
	t.points = append(t.points, Point{})
	copy(t.points[i+1:], t.points[i:])
	t.points[i] = p
	return nil
}

// Delete removes node i. At least two nodes always remain.
func (t *Tabulated) Delete(i int) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	if len(t.points) <= 2 {
		return fmt.Errorf("%w: cannot delete, 2 points is the minimum", ErrInappropriatePoint)
	}
	t.points = append(t.points[:i], t.points[i+1:]...)
	return nil
}

func (t *Tabulated) checkIndex(i int) error {
	if i < 0 || i >= len(t.points) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrPointIndex, i, len(t.points))
	}
	return nil
}

// Integral returns the exact integral of the piecewise linear function from
// a to b. Both bounds must lie inside the domain; a > b flips the sign.
func (t *Tabulated) Integral(a, b float64) (float64, error) {
	for _, x := range []float64{a, b} {
		if !(x >= t.LeftBorder() && x <= t.RightBorder()) {
			return 0, &DomainError{Left: a, Right: b, Reason: fmt.Sprintf(
				"bound %g outside domain [%g, %g]", x, t.LeftBorder(), t.RightBorder())}
		}
	}

	sign := 1.0
	if a > b {
		a, b, sign = b, a, -1
	}

	var integral float64
	for i := 1; i < len(t.points); i++ {
		lo, hi := t.points[i-1], t.points[i]
		from, to := math.Max(lo.X, a), math.Min(hi.X, b)
		if from >= to {
			continue
		}
		integral += (interpolate(lo, hi, from) + interpolate(lo, hi, to)) * (to - from) / 2
	}
	return sign * integral, nil
}

func (t *Tabulated) String() string {
	parts := make([]string, len(t.points))
	for i, p := range t.points {
		parts[i] = fmt.Sprintf("(%g; %g)", p.X, p.Y)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

package function

import (
	"fmt"
	"math"
)

type sum struct{ f, g Function }

// Sum returns f + g on the intersection of their domains.
func Sum(f, g Function) (Function, error) {
	if f == nil || g == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	return sum{f, g}, nil
}

func (s sum) LeftBorder() float64     { return math.Max(s.f.LeftBorder(), s.g.LeftBorder()) }
func (s sum) RightBorder() float64    { return math.Min(s.f.RightBorder(), s.g.RightBorder()) }
func (s sum) Value(x float64) float64 { return s.f.Value(x) + s.g.Value(x) }

type mult struct{ f, g Function }

// Mult returns f * g on the intersection of their domains.
func Mult(f, g Function) (Function, error) {
	if f == nil || g == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	return mult{f, g}, nil
}

func (m mult) LeftBorder() float64     { return math.Max(m.f.LeftBorder(), m.g.LeftBorder()) }
func (m mult) RightBorder() float64    { return math.Min(m.f.RightBorder(), m.g.RightBorder()) }
func (m mult) Value(x float64) float64 { return m.f.Value(x) * m.g.Value(x) }

type power struct {
	f Function
	p float64
}

// Power returns f(x)^p.
func Power(f Function, p float64) (Function, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	return power{f, p}, nil
}

func (p power) LeftBorder() float64     { return p.f.LeftBorder() }
func (p power) RightBorder() float64    { return p.f.RightBorder() }
func (p power) Value(x float64) float64 { return math.Pow(p.f.Value(x), p.p) }

type composition struct{ outer, inner Function }

// Composition returns outer(inner(x)). The domain is the domain of inner;
// points where inner leaves the domain of outer evaluate to NaN.
func Composition(outer, inner Function) (Function, error) {
	if outer == nil || inner == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	return composition{outer, inner}, nil
}

func (c composition) LeftBorder() float64  { return c.inner.LeftBorder() }
func (c composition) RightBorder() float64 { return c.inner.RightBorder() }

func (c composition) Value(x float64) float64 {
	y := c.inner.Value(x)
	if math.IsNaN(y) || y < c.outer.LeftBorder() || y > c.outer.RightBorder() {
		return math.NaN()
	}
	return c.outer.Value(y)
}

type shift struct {
	f      Function
	dx, dy float64
}

// Shift returns dy + f(x + dx).
func Shift(f Function, dx, dy float64) (Function, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	return shift{f, dx, dy}, nil
}

func (s shift) LeftBorder() float64     { return s.f.LeftBorder() - s.dx }
func (s shift) RightBorder() float64    { return s.f.RightBorder() - s.dx }
func (s shift) Value(x float64) float64 { return s.dy + s.f.Value(x+s.dx) }

type scale struct {
	f      Function
	kx, ky float64
}

// Scale returns ky * f(kx * x). Neither factor may be zero.
func Scale(f Function, kx, ky float64) (Function, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	if math.Abs(kx) < eps || math.Abs(ky) < eps {
		return nil, fmt.Errorf("%w: zero scale factor (%v, %v)", ErrInvalidArgument, kx, ky)
	}
	return scale{f, kx, ky}, nil
}

func (s scale) LeftBorder() float64 {
	if s.kx > 0 {
		return s.f.LeftBorder() / s.kx
	}
	return s.f.RightBorder() / s.kx
}

func (s scale) RightBorder() float64 {
	if s.kx > 0 {
		return s.f.RightBorder() / s.kx
	}
	return s.f.LeftBorder() / s.kx
}

func (s scale) Value(x float64) float64 { return s.ky * s.f.Value(s.kx*x) }

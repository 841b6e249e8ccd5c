package function

import (
	"fmt"
	"math"
	"strings"
)

// Polynomial is c0 + c1*x + ... + cn*x^n.
type Polynomial struct {
	coeffs []float64
}

// NewPolynomial returns the polynomial with the given coefficients, the free
// term first.
func NewPolynomial(coeffs ...float64) (*Polynomial, error) {
	if len(coeffs) == 0 {
		return nil, fmt.Errorf("%w: polynomial needs at least one coefficient", ErrInvalidArgument)
	}
	for i, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: coefficient %d is %v", ErrInvalidArgument, i, c)
		}
	}
	return &Polynomial{coeffs: append([]float64(nil), coeffs...)}, nil
}

// Degree returns the index of the highest non-zero coefficient.
func (p *Polynomial) Degree() int {
	for i := len(p.coeffs) - 1; i > 0; i-- {
		if math.Abs(p.coeffs[i]) > eps {
			return i
		}
	}
	return 0
}

func (p *Polynomial) LeftBorder() float64  { return math.Inf(-1) }
func (p *Polynomial) RightBorder() float64 { return math.Inf(1) }

// Value evaluates p by Horner's scheme.
func (p *Polynomial) Value(x float64) float64 {
	var y float64
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		y = y*x + p.coeffs[i]
	}
	return y
}

func (p *Polynomial) String() string {
	terms := make([]string, 0, len(p.coeffs))
	for i, c := range p.coeffs {
		if i > 0 && math.Abs(c) <= eps {
			continue
		}
		switch i {
		case 0:
			terms = append(terms, fmt.Sprintf("%g", c))
		case 1:
			terms = append(terms, fmt.Sprintf("%g*x", c))
		default:
			terms = append(terms, fmt.Sprintf("%g*x^%d", c, i))
		}
	}
	return strings.Join(terms, " + ")
}

type derivative struct {
	f Function
	h float64
}

// Derivative approximates f' by the central difference with step h. The
// domain of f shrinks by h on both sides.
func Derivative(f Function, h float64) (Function, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	if !(h > 0) {
		return nil, fmt.Errorf("%w: derivative step must be positive, got %v", ErrInvalidArgument, h)
	}
	return derivative{f: f, h: h}, nil
}

func (d derivative) LeftBorder() float64  { return d.f.LeftBorder() + d.h }
func (d derivative) RightBorder() float64 { return d.f.RightBorder() - d.h }

func (d derivative) Value(x float64) float64 {
	if x < d.LeftBorder() || x > d.RightBorder() {
		return math.NaN()
	}
	return (d.f.Value(x+d.h) - d.f.Value(x-d.h)) / (2 * d.h)
}

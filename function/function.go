// Package function provides univariate real functions, combinators over
// them and numeric integration.
//
// A Function reports its domain as a closed interval and returns NaN for
// points where it is undefined. All functions in this package except Tabulated
// are immutable values and safe for concurrent use.
package function

import (
	"errors"
	"fmt"
	"math"
)

// Function is a univariate real function.
type Function interface {
	// LeftBorder returns the left end of the domain.
	LeftBorder() float64
	// RightBorder returns the right end of the domain.
	RightBorder() float64
	// Value returns f(x), or NaN if f is undefined at x.
	Value(x float64) float64
}

// ErrInvalidArgument is returned by constructors given unusable parameters.
var ErrInvalidArgument = errors.New("function: invalid argument")

const eps = 1e-10

// Log is the logarithm with a fixed base.
type Log struct {
	base float64
}

// NewLog returns the logarithm to the given base. The base must be positive
// and differ from 1.
func NewLog(base float64) (*Log, error) {
	if base <= 0 || math.Abs(base-1) < eps || math.IsNaN(base) {
		return nil, fmt.Errorf("%w: log base %v", ErrInvalidArgument, base)
	}
	return &Log{base: base}, nil
}

func (l *Log) Base() float64        { return l.base }
func (l *Log) LeftBorder() float64  { return 0 }
func (l *Log) RightBorder() float64 { return math.Inf(1) }

func (l *Log) Value(x float64) float64 {
	if x <= 0 {
		return math.NaN()
	}
	return math.Log(x) / math.Log(l.base)
}

func (l *Log) String() string { return fmt.Sprintf("Log(base=%g)", l.base) }

// Exp is e^x.
type Exp struct{}

func (Exp) LeftBorder() float64     { return math.Inf(-1) }
func (Exp) RightBorder() float64    { return math.Inf(1) }
func (Exp) Value(x float64) float64 { return math.Exp(x) }

// Sin is sin(x).
type Sin struct{}

func (Sin) LeftBorder() float64     { return math.Inf(-1) }
func (Sin) RightBorder() float64    { return math.Inf(1) }
func (Sin) Value(x float64) float64 { return math.Sin(x) }

// Cos is cos(x).
type Cos struct{}

func (Cos) LeftBorder() float64     { return math.Inf(-1) }
func (Cos) RightBorder() float64    { return math.Inf(1) }
func (Cos) Value(x float64) float64 { return math.Cos(x) }

// Tan is tan(x). It is NaN where cos(x) vanishes.
type Tan struct{}

func (Tan) LeftBorder() float64  { return math.Inf(-1) }
func (Tan) RightBorder() float64 { return math.Inf(1) }

func (Tan) Value(x float64) float64 {
	if math.Abs(math.Cos(x)) < eps {
		return math.NaN()
	}
	return math.Tan(x)
}

// Constant is f(x) = c on the whole real line.
type Constant float64

func (Constant) LeftBorder() float64     { return math.Inf(-1) }
func (Constant) RightBorder() float64    { return math.Inf(1) }
func (c Constant) Value(float64) float64 { return float64(c) }
func (c Constant) String() string        { return fmt.Sprintf("Constant(%g)", float64(c)) }

// Identity is f(x) = x.
type Identity struct{}

func (Identity) LeftBorder() float64     { return math.Inf(-1) }
func (Identity) RightBorder() float64    { return math.Inf(1) }
func (Identity) Value(x float64) float64 { return x }

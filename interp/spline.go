package interp

import (
	"errors"
	"fmt"
	"math"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

// Spline evaluates an interpolated function at x. Inputs outside the
// control point range evaluate to the nearest endpoint value.
type Spline func(x float64) float64

var ErrTooFewPoints = errors.New("at least two control points are required")

func validate(xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("mismatched control points: %d x values and %d y values", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return ErrTooFewPoints
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return fmt.Errorf("control point x values must be strictly increasing, x[%d]=%v x[%d]=%v", i-1, xs[i-1], i, xs[i])
		}
	}
	return nil
}

// New builds a spline of the requested kind. Cubic is served by PCHIP so
// that corrections never overshoot between control points.
func New(kind types.Interpolation, xs, ys []float64) (Spline, error) {
	switch kind {
	case types.Linear:
		return NewLinear(xs, ys)
	case types.CatmullRom:
		return NewCatmullRom(xs, ys, 0.5)
	default:
		return NewPCHIP(xs, ys)
	}
}

// get_interval returns i such that xs[i] <= x <= xs[i+1], clamped to the
// valid interval range.
func get_interval(xs []float64, x float64) int {
	n := len(xs)
	if n < 2 || x <= xs[0] {
		return 0
	}
	if x >= xs[n-1] {
		return n - 2
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) >> 1
		if xs[mid] <= x {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

func NewLinear(xs, ys []float64) (Spline, error) {
	if err := validate(xs, ys); err != nil {
		return nil, err
	}
	n := len(xs)
	return func(x float64) float64 {
		if x <= xs[0] {
			return ys[0]
		}
		if x >= xs[n-1] {
			return ys[n-1]
		}
		i := get_interval(xs, x)
		p := (x - xs[i]) / (xs[i+1] - xs[i])
		return ys[i] + p*(ys[i+1]-ys[i])
	}, nil
}

// NewPCHIP builds a piecewise cubic Hermite interpolant with Fritsch-Carlson
// style slopes: zero at local extrema, weighted harmonic means elsewhere and
// one-sided differences at the ends. Monotonic data yields a monotonic curve.
func NewPCHIP(xs, ys []float64) (Spline, error) {
	if err := validate(xs, ys); err != nil {
		return nil, err
	}
	n := len(xs)
	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := range n - 1 {
		h[i] = xs[i+1] - xs[i]
		delta[i] = (ys[i+1] - ys[i]) / h[i]
	}
	slopes := make([]float64, n)
	slopes[0], slopes[n-1] = delta[0], delta[n-2]
	for i := 1; i < n-1; i++ {
		if delta[i-1]*delta[i] <= 0 {
			continue
		}
		w1 := 2*h[i] + h[i-1]
		w2 := h[i] + 2*h[i-1]
		slopes[i] = (w1 + w2) / (w1/delta[i-1] + w2/delta[i])
	}
	return func(x float64) float64 {
		if x <= xs[0] {
			return ys[0]
		}
		if x >= xs[n-1] {
			return ys[n-1]
		}
		i := get_interval(xs, x)
		t := (x - xs[i]) / h[i]
		t2, t3 := t*t, t*t*t
		h00 := 2*t3 - 3*t2 + 1
		h10 := t3 - 2*t2 + t
		h01 := -2*t3 + 3*t2
		h11 := t3 - t2
		return ys[i]*h00 + h[i]*slopes[i]*h10 + ys[i+1]*h01 + h[i]*slopes[i+1]*h11
	}, nil
}

// NewCatmullRom builds a Catmull-Rom spline. tension 0 is close to linear,
// 0.5 is the standard spline and 1 is loose.
func NewCatmullRom(xs, ys []float64, tension float64) (Spline, error) {
	if err := validate(xs, ys); err != nil {
		return nil, err
	}
	tension = math.Max(0, math.Min(1, tension))
	n := len(xs)
	return func(x float64) float64 {
		if x <= xs[0] {
			return ys[0]
		}
		if x >= xs[n-1] {
			return ys[n-1]
		}
		i := get_interval(xs, x)
		p0, p1 := ys[max(0, i-1)], ys[i]
		p2, p3 := ys[min(n-1, i+1)], ys[min(n-1, i+2)]
		t := (x - xs[i]) / (xs[i+1] - xs[i])
		t2, t3 := t*t, t*t*t
		q0 := -tension*t3 + 2*tension*t2 - tension*t
		q1 := (2-tension)*t3 + (tension-3)*t2 + 1
		q2 := (tension-2)*t3 + (3-2*tension)*t2 + tension*t
		q3 := tension*t3 - tension*t2
		return p0*q0 + p1*q1 + p2*q2 + p3*q3
	}, nil
}

// UniformPositions returns n evenly spaced positions over [lo, hi].
func UniformPositions(n int, lo, hi float64) []float64 {
	ans := make([]float64, n)
	if n == 1 {
		ans[0] = lo
		return ans
	}
	for i := range ans {
		ans[i] = lo + float64(i)/float64(n-1)*(hi-lo)
	}
	return ans
}

package interp

import (
	"fmt"
	"math"
)

var _ = fmt.Print

func clamp01(x float64) float64 {
	switch {
	case x < 0 || math.IsNaN(x):
		return 0
	case x > 1:
		return 1
	}
	return x
}

// Table is a function sampled at evenly spaced positions over [0, 1] and
// evaluated by linear interpolation between neighbouring samples.
type Table struct {
	points  []float64
	max_idx float64
}

func NewTable(points []float64) *Table {
	p := make([]float64, len(points))
	copy(p, points)
	return &Table{points: p, max_idx: float64(len(p) - 1)}
}

func sampled_value(samples []float64, max_idx float64, x float64) float64 {
	idx := clamp01(x) * max_idx
	lof := math.Trunc(idx)
	lo := int(lof)
	if lof == idx {
		return samples[lo]
	}
	p := idx - lof
	return samples[lo] + p*(samples[lo+1]-samples[lo])
}

func (t *Table) Transform(x float64) float64 {
	if len(t.points) == 0 {
		return 0
	}
	return sampled_value(t.points, t.max_idx, x)
}

func (t *Table) Len() int { return len(t.points) }

func (t *Table) String() string { return fmt.Sprintf("Table{%d}", len(t.points)) }

// Spline exposes the table as a Spline.
func (t *Table) Spline() Spline { return t.Transform }

// Invert returns the smallest x in [0, 1] with f(x) >= y for a
// non-decreasing f, found by bisection.
func Invert(f Spline, y float64, iterations int) float64 {
	lo, hi := 0.0, 1.0
	for range iterations {
		mid := (lo + hi) / 2
		if f(mid) < y {
			lo = mid
		} else {
			hi = mid
		}
	}
	return clamp01(hi)
}

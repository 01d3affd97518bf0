package composite

import (
	"math"

	"github.com/David-Marsh-Photo/quadGEN-sub001/correction"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

const (
	MaxDensity       = 2.0
	MinSolverDensity = 0.01
	// UnknownDensity is used for channels without a default.
	UnknownDensity = 1.0

	solver_iterations = 500
)

// DefaultDensities are the relative optical densities of common inks.
var DefaultDensities = map[types.ChannelName]float64{
	"K":  1.0,
	"MK": 1.0,
	"C":  0.21,
	"LK": 0.054,
}

// WeightSource tells where a channel's density weight came from.
type WeightSource string

const (
	WeightManual  WeightSource = "manual"
	WeightSolver  WeightSource = "solver"
	WeightDefault WeightSource = "default"
)

type Weight struct {
	Value  float64
	Source WeightSource
}

func clamp_density(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(0, math.Min(MaxDensity, v))
}

// ResolveWeights picks a density weight per channel: an explicit override,
// then a solved value, then the default table.
func ResolveWeights(names []types.ChannelName, overrides, solved map[types.ChannelName]float64) map[types.ChannelName]Weight {
	ans := make(map[types.ChannelName]Weight, len(names))
	for _, name := range names {
		if v, ok := overrides[name]; ok && !math.IsNaN(v) {
			ans[name] = Weight{clamp_density(v), WeightManual}
			continue
		}
		if v, ok := solved[name]; ok && !math.IsNaN(v) {
			ans[name] = Weight{math.Max(MinSolverDensity, clamp_density(v)), WeightSolver}
			continue
		}
		if v, ok := DefaultDensities[name]; ok {
			ans[name] = Weight{v, WeightDefault}
		} else {
			ans[name] = Weight{UnknownDensity, WeightDefault}
		}
	}
	return ans
}

// SolveDensities estimates the relative density of each channel from
// measurements taken through the baseline curves. It fits non-negative
// weights so that the weighted ink at every measured input matches the
// measured optical density, then scales the result so the densest channel
// weighs 1. Channels without ink at any measured input are omitted.
func SolveDensities(pairs []correction.MeasuredPair, names []types.ChannelName, bases map[types.ChannelName]types.Curve) map[types.ChannelName]float64 {
	if len(pairs) < 2 || len(names) == 0 {
		return nil
	}
	divisor := 100.0
	for _, p := range pairs {
		if p.Input > 100 {
			divisor = 255
			break
		}
	}
	paper := math.Inf(1)
	for _, p := range pairs {
		paper = math.Min(paper, correction.LstarToDensity(p.Lab))
	}
	var cols []types.ChannelName
	var a [][]float64
	for _, name := range names {
		c := bases[name]
		if len(c) == 0 {
			continue
		}
		col := make([]float64, len(pairs))
		has_ink := false
		for j, p := range pairs {
			x := math.Max(0, math.Min(1, p.Input/divisor))
			idx := int(math.Round(x * float64(len(c)-1)))
			col[j] = float64(c[idx]) / types.TOTAL
			has_ink = has_ink || col[j] > 0
		}
		if has_ink {
			cols = append(cols, name)
			a = append(a, col)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	b := make([]float64, len(pairs))
	for j, p := range pairs {
		b[j] = correction.LstarToDensity(p.Lab) - paper
	}
	w := nnls(a, b)
	peak := 0.0
	for _, v := range w {
		peak = math.Max(peak, v)
	}
	if peak <= 0 {
		return nil
	}
	ans := make(map[types.ChannelName]float64, len(cols))
	for i, name := range cols {
		ans[name] = math.Max(MinSolverDensity, clamp_density(w[i]/peak))
	}
	return ans
}

// nnls minimizes |sum_i w_i cols_i - b|^2 subject to w >= 0 by cyclic
// coordinate descent.
func nnls(cols [][]float64, b []float64) []float64 {
	w := make([]float64, len(cols))
	residual := append([]float64(nil), b...)
	norms := make([]float64, len(cols))
	for i, col := range cols {
		for _, v := range col {
			norms[i] += v * v
		}
	}
	for range solver_iterations {
		moved := 0.0
		for i, col := range cols {
			if norms[i] == 0 {
				continue
			}
			g := 0.0
			for j, v := range col {
				g += v * residual[j]
			}
			nw := math.Max(0, w[i]+g/norms[i])
			if d := nw - w[i]; d != 0 {
				for j, v := range col {
					residual[j] -= d * v
				}
				w[i] = nw
				moved = math.Max(moved, math.Abs(d))
			}
		}
		if moved < 1e-12 {
			break
		}
	}
	return w
}

package composite

import (
	"fmt"
	"math"

	"github.com/kovidgoyal/go-parallel"

	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/curve"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

const residual_epsilon = 1e-9

type plan struct {
	names         []types.ChannelName
	bases         []types.Curve
	ends          []int
	weights       []float64
	mode          WeightingMode
	correct       func(float64) float64
	cfg           config.Configuration
	analysis_only bool
}

// sample_state is the working state of one input level.
type sample_state struct {
	before, after, caps, shares []float64
	clamped                     []bool
	active                      []int
}

// shares returns the fraction of the density change each active channel
// takes at sample i.
func (p *plan) shares(i int, norm [][]float64, momentum [][]float64, active []int, out []float64) {
	clear(out)
	if len(active) == 0 {
		return
	}
	normalized := func() {
		total := 0.0
		for _, c := range active {
			total += p.weights[c] * norm[c][i]
		}
		for _, c := range active {
			out[c] = p.weights[c] * norm[c][i] / total
		}
	}
	switch p.mode {
	case Equal:
		for _, c := range active {
			out[c] = 1 / float64(len(active))
		}
	case Isolated:
		best := active[0]
		for _, c := range active[1:] {
			if p.weights[c]*norm[c][i] > p.weights[best]*norm[best][i] {
				best = c
			}
		}
		out[best] = 1
	case Momentum:
		total := 0.0
		for _, c := range active {
			total += p.weights[c] * norm[c][i] * momentum[c][i]
		}
		if total <= 0 {
			normalized()
			return
		}
		for _, c := range active {
			out[c] = p.weights[c] * norm[c][i] * momentum[c][i] / total
		}
	default:
		normalized()
	}
}

// spread moves residual density into the active channels that still have
// room, in proportion to that room, for at most one pass per channel. It
// returns the density that could not be placed.
func (p *plan) spread(st *sample_state, residual float64) float64 {
	for range len(p.names) {
		if math.Abs(residual) <= residual_epsilon {
			break
		}
		room := make([]float64, len(p.names))
		total := 0.0
		for _, c := range st.active {
			if residual > 0 {
				room[c] = math.Max(0, st.caps[c]-st.after[c]) * p.weights[c]
			} else {
				room[c] = math.Max(0, st.after[c]) * p.weights[c]
			}
			total += room[c]
		}
		if total <= residual_epsilon {
			break
		}
		moved := math.Min(math.Abs(residual), total)
		sign := math.Copysign(1, residual)
		for _, c := range st.active {
			if room[c] > 0 {
				st.after[c] += sign * moved * room[c] / total / p.weights[c]
				st.after[c] = math.Max(0, math.Min(st.caps[c], st.after[c]))
			}
		}
		residual -= sign * moved
	}
	return residual
}

func (p *plan) ceiling(limit, buffered, baseline float64) float64 {
	if p.cfg.CompositePerSampleCeiling {
		return math.Min(limit, math.Max(buffered, baseline))
	}
	return limit
}

func (p *plan) run() (*Result, error) {
	k, n := len(p.names), types.CurveResolution
	norm := make([][]float64, k)
	after := make([][]float64, k)
	clamped := make([][]bool, k)
	momentum := make([][]float64, k)
	cov := make([]CoverageEntry, k)
	for c := range k {
		norm[c] = make([]float64, n)
		for i, v := range p.bases[c] {
			norm[c][i] = clamp01(float64(v) / types.TOTAL)
		}
		after[c] = append([]float64(nil), norm[c]...)
		clamped[c] = make([]bool, n)
		if p.mode == Momentum {
			momentum[c] = ChannelMomentum(p.bases[c], p.ends[c])
		}
		cov[c] = new_coverage_entry(p.ends[c], p.cfg.Composite.CoverageBuffer)
	}
	density := make([]float64, n)
	dmax := 0.0
	for i := range n {
		for c := range k {
			density[i] += p.weights[c] * norm[c][i]
		}
		dmax = math.Max(dmax, density[i])
	}
	st := sample_state{
		before: make([]float64, k), after: make([]float64, k), caps: make([]float64, k),
		shares: make([]float64, k), clamped: make([]bool, k),
	}
	snapshots := make([]Snapshot, n)
	for i := range n {
		snap := Snapshot{Index: i, InputPercent: float64(i) / float64(n-1) * 100, BaselineDensity: density[i], DesiredDensity: density[i]}
		st.active = st.active[:0]
		for c := range k {
			st.before[c], st.after[c] = norm[c][i], norm[c][i]
			st.caps[c] = p.ceiling(cov[c].Limit, cov[c].BufferedLimit, norm[c][i])
			st.clamped[c] = false
			if p.weights[c] > 0 && norm[c][i] > 0 {
				st.active = append(st.active, c)
			}
		}
		p.shares(i, norm, momentum, st.active, st.shares)
		if dmax > 0 && len(st.active) > 0 {
			snap.DesiredDensity = p.correct(density[i]/dmax) * dmax
			snap.DeltaDensity = snap.DesiredDensity - density[i]
			residual := 0.0
			for _, c := range st.active {
				v := st.before[c] + st.shares[c]*snap.DeltaDensity/p.weights[c]
				if v > st.caps[c] {
					residual += (v - st.caps[c]) * p.weights[c]
					if v-st.caps[c] > residual_epsilon {
						st.clamped[c] = true
						if !p.analysis_only {
							cov[c].OverflowNormalized += v - st.caps[c]
						}
					}
					v = st.caps[c]
				} else if v < 0 {
					residual += v * p.weights[c]
					v = 0
				}
				st.after[c] = v
			}
			snap.ResidualDensity = p.spread(&st, residual)
		}
		snap.PerChannel = make(map[types.ChannelName]ChannelSnapshot, k)
		for c, name := range p.names {
			cs := ChannelSnapshot{
				NormalizedBefore: st.before[c], NormalizedAfter: st.after[c],
				CapacityBefore: st.caps[c] - st.before[c], CapacityAfter: st.caps[c] - st.after[c],
				Share: st.shares[c], Clamped: st.clamped[c],
			}
			if p.analysis_only {
				cs.NormalizedAfter, cs.CapacityAfter = cs.NormalizedBefore, cs.CapacityBefore
			} else {
				after[c][i] = st.after[c]
				cs.InkDelta = st.after[c] - st.before[c]
				cs.DeltaDensity = cs.InkDelta * p.weights[c]
				if st.clamped[c] {
					clamped[c][i] = true
					cov[c].ClampedSamples = append(cov[c].ClampedSamples, ClampEvent{Index: i, InputPercent: snap.InputPercent})
				}
			}
			snap.PerChannel[name] = cs
		}
		if p.analysis_only {
			snap.ResidualDensity = 0
		}
		snapshots[i] = snap
	}
	curves := make([]types.Curve, k)
	finish := func(start, limit int) {
		for c := start; c < limit; c++ {
			curves[c] = p.finish_channel(c, after[c], clamped[c])
		}
	}
	if err := parallel.Run_in_parallel_over_range(0, finish, 0, k); err != nil {
		return nil, fmt.Errorf("finishing composite curves: %w", err)
	}
	r := &Result{
		Curves: make(map[types.ChannelName]types.Curve, k), PeakIndices: make(map[types.ChannelName]int, k),
		Coverage: make(Summary, k), Snapshots: snapshots, WeightingMode: p.mode, AnalysisOnly: p.analysis_only,
	}
	ends := make(map[types.ChannelName]int, k)
	for c, name := range p.names {
		r.Curves[name] = curves[c]
		r.PeakIndices[name] = curve.PeakIndex(curves[c])
		cov[c].MaxNormalized = float64(curves[c].Max()) / types.TOTAL
		cov[c].Overflow = len(cov[c].ClampedSamples)
		r.Coverage[name] = cov[c]
		ends[name] = p.ends[c]
		for i := range snapshots {
			cs := snapshots[i].PerChannel[name]
			cs.ValueDelta = curves[c][i] - p.bases[c][i]
			snapshots[i].PerChannel[name] = cs
		}
	}
	r.Warnings = CollectWarnings(p.names, r.Curves, ends, p.cfg.Composite.SaturationRatio, p.cfg.Composite.SaturationInputCutoff)
	return r, nil
}

// finish_channel converts a channel back to curve values and applies the
// shape constraints: a single peak matching the baseline and, when enabled,
// slope smoothing that leaves clamped samples in place.
func (p *plan) finish_channel(c int, normalized []float64, clamped []bool) types.Curve {
	base := p.bases[c]
	if p.analysis_only {
		return base.Clone()
	}
	end := p.ends[c]
	to_curve := func(s []float64) types.Curve {
		ans := types.NewCurve()
		for i, v := range s {
			ans[i] = max(0, min(end, int(math.Round(clamp01(v)*types.TOTAL))))
		}
		return ans
	}
	ans := curve.EnforceSinglePeak(to_curve(normalized), base)
	if p.cfg.SlopeKernelSmoothing {
		series := make([]float64, len(ans))
		for i, v := range ans {
			series[i] = float64(v) / types.TOTAL
		}
		if smoothed, applied := curve.SmoothSlopes(series, p.cfg.Composite.SlopeThresholdPercent/100, clamped); applied {
			ans = to_curve(smoothed)
		}
	}
	return ans
}

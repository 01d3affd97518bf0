// Package lut applies a 1D tone correction to 256 sample ink curves, either
// at fixed input positions or relative to the active range of each curve.
package lut

import (
	"fmt"
	"math"
	"slices"

	"github.com/kovidgoyal/go-parallel"
	"maps"

	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/correction"
	"github.com/David-Marsh-Photo/quadGEN-sub001/curve"
	"github.com/David-Marsh-Photo/quadGEN-sub001/interp"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

// Params are the per call settings of an application. SmoothingPercent
// smooths the correction samples before the sampler is built.
type Params struct {
	DomainMin, DomainMax float64
	// MaxOutput is the channel ceiling; 0 means TOTAL.
	MaxOutput        int
	Interpolation    types.Interpolation
	SmoothingPercent float64
}

// ParamsFor returns Params using the domain and interpolation of e.
func ParamsFor(e *correction.Entry, maxOutput int) Params {
	p := Params{DomainMax: 1, MaxOutput: maxOutput}
	if e != nil {
		p.DomainMin, p.DomainMax = e.Domain()
		p.Interpolation = e.Interpolation
		p.SmoothingPercent = e.PreviewSmoothingPercent
	}
	return p
}

func (p Params) domain() (lo, hi float64) {
	lo, hi = p.DomainMin, p.DomainMax
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || hi <= lo {
		return 0, 1
	}
	return
}

func (p Params) max_output() int {
	if p.MaxOutput <= 0 {
		return types.TOTAL
	}
	return min(p.MaxOutput, types.TOTAL)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}

// PrinterSamples returns the samples of e prepared for sampling: in printer
// space, clamped to [0,1], anchored when cube anchoring is enabled and
// smoothed by p.SmoothingPercent.
func PrinterSamples(e *correction.Entry, p Params, cfg config.Configuration) []float64 {
	samples := correction.ToPrinterSpace(e.ResolvedSamples(), e.SourceSpace)
	if cfg.CubeEndpointAnchoring && e.Format == types.CUBE1D {
		samples = correction.AnchorEndpoints(samples)
	}
	if p.SmoothingPercent > 0 && !e.IsMeasured() {
		samples = correction.SmoothSamples(samples, p.SmoothingPercent)
	}
	return samples
}

// NewSampler builds the interpolator for e over the domain of p. It returns
// false when e has fewer than two usable samples.
func NewSampler(e *correction.Entry, p Params, cfg config.Configuration) (interp.Spline, bool) {
	if e == nil {
		return nil, false
	}
	samples := PrinterSamples(e, p, cfg)
	if len(samples) < 2 {
		return nil, false
	}
	lo, hi := p.domain()
	var s interp.Spline
	var err error
	if p.Interpolation == types.CatmullRom {
		s, err = interp.NewCatmullRom(interp.UniformPositions(len(samples), lo, hi), samples, 0.5)
	} else {
		s, err = interp.New(p.Interpolation, interp.UniformPositions(len(samples), lo, hi), samples)
	}
	if err != nil {
		return nil, false
	}
	return s, true
}

// LinearizationTargets evaluates s across its whole domain at 256 evenly
// spaced positions, scaled to maxOutput.
func LinearizationTargets(s interp.Spline, p Params) types.Curve {
	lo, hi := p.domain()
	m := float64(p.max_output())
	ans := types.NewCurve()
	for i := range ans {
		t := lo + float64(i)/float64(len(ans)-1)*(hi-lo)
		ans[i] = int(math.Round(clamp01(s(t)) * m))
	}
	return ans
}

// ApplyFixedDomain maps every value of base through the correction at its
// absolute position: v/MaxOutput is located in the correction domain and
// the corrected fraction is scaled back by MaxOutput.
func ApplyFixedDomain(base types.Curve, e *correction.Entry, p Params, cfg config.Configuration) types.Curve {
	if !base.HasInk() {
		return make(types.Curve, len(base))
	}
	s, ok := NewSampler(e, p, cfg)
	if !ok {
		return base.Clone()
	}
	lo, hi := p.domain()
	m := float64(p.max_output())
	ans := make(types.Curve, len(base))
	for i, v := range base {
		t := lo + clamp01(float64(v)/m)*(hi-lo)
		ans[i] = max(0, min(types.TOTAL, int(math.Round(clamp01(s(t))*m))))
	}
	return ans
}

// ApplyActiveRange evaluates the correction over its full domain and maps
// the result onto the active range of base, so that the correction follows
// the channel's own onset and end instead of absolute input levels.
func ApplyActiveRange(base types.Curve, e *correction.Entry, p Params, cfg config.Configuration) types.Curve {
	if !base.HasInk() {
		return make(types.Curve, len(base))
	}
	s, ok := NewSampler(e, p, cfg)
	if !ok {
		return base.Clone()
	}
	targets := LinearizationTargets(s, p)
	return curve.EnforceMonotonic(curve.RemapActiveRange(base, targets, curve.DetectActiveRange(base), p.max_output()))
}

// Apply dispatches on cfg.ActiveRangeLinearization.
func Apply(base types.Curve, e *correction.Entry, p Params, cfg config.Configuration) types.Curve {
	if cfg.ActiveRangeLinearization {
		return ApplyActiveRange(base, e, p, cfg)
	}
	return ApplyFixedDomain(base, e, p, cfg)
}

// ApplyToChannels applies e to every curve in parallel. Each channel uses
// its entry in ends as MaxOutput, falling back to the curve maximum.
func ApplyToChannels(curves map[types.ChannelName]types.Curve, ends map[types.ChannelName]int, e *correction.Entry, p Params, cfg config.Configuration) (map[types.ChannelName]types.Curve, error) {
	names := slices.Sorted(maps.Keys(curves))
	results := make([]types.Curve, len(names))
	f := func(start, limit int) {
		for i := start; i < limit; i++ {
			c := curves[names[i]]
			cp := p
			if end, ok := ends[names[i]]; ok && end > 0 {
				cp.MaxOutput = end
			} else if m := c.Max(); m > 0 {
				cp.MaxOutput = m
			}
			results[i] = Apply(c, e, cp, cfg)
		}
	}
	if err := parallel.Run_in_parallel_over_range(0, f, 0, len(names)); err != nil {
		return nil, fmt.Errorf("applying correction to %d channels: %w", len(names), err)
	}
	ans := make(map[types.ChannelName]types.Curve, len(names))
	for i, name := range names {
		ans[name] = results[i]
	}
	return ans, nil
}

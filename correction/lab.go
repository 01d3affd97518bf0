package correction

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/interp"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

const (
	min_reflectance    = 1e-6
	lab_k_neighbors    = 6
	lab_sigma_floor    = 0.02
	lab_sigma_ceil     = 0.15
	lab_sigma_alpha    = 3.0
	lab_monotone_step  = 1.0 / 4096
	lab_bisection_iter = 40
	lab_max_widen_pct  = 90
)

// LstarToY converts a neutral CIE L* in [0,100] to relative luminance Y.
func LstarToY(L float64) float64 {
	_, y, _ := colorful.LabToXyz(math.Max(0, math.Min(100, finite(L)))/100, 0, 0)
	return y
}

// LstarToDensity is the optical density -log10(Y) of a neutral L*.
func LstarToDensity(L float64) float64 {
	y := math.Max(min_reflectance, math.Min(1, LstarToY(L)))
	return -math.Log10(y)
}

// NormalizeMeasurements converts measured L* values to ink darkness in
// [0,1]: 0 at the lightest patch and 1 at the darkest, either linearly in
// L* or in optical density.
func NormalizeMeasurements(pairs []MeasuredPair, mode NormalizationMode) []float64 {
	if len(pairs) == 0 {
		return nil
	}
	vals := make([]float64, len(pairs))
	for i, p := range pairs {
		if mode == NormalizeDensity {
			vals[i] = LstarToDensity(p.Lab)
		} else {
			vals[i] = -finite(p.Lab)
		}
	}
	lo, hi := slices.Min(vals), slices.Max(vals)
	span := math.Max(1e-6, hi-lo)
	ans := make([]float64, len(vals))
	for i, v := range vals {
		ans[i] = clamp01((v - lo) / span)
	}
	return ans
}

// WidenFactor maps a smoothing percent to the factor applied to the local
// smoothing kernel width.
func WidenFactor(percent float64) float64 {
	return 1 + math.Max(0, math.Min(lab_max_widen_pct, finite(percent)))/100
}

// BaselineWidenFactor is the widen factor for the baseline rebuild: 1 when
// baseline smoothing is enabled, else the configured smoothing.
func BaselineWidenFactor(cfg config.Configuration) float64 {
	if cfg.LabBaselineSmoothing {
		return 1
	}
	return WidenFactor(cfg.Lab.SmoothingPercent)
}

type lab_point struct{ pos, ink float64 }

func lab_points(pairs []MeasuredPair, mode NormalizationMode) []lab_point {
	divisor := 100.0
	for _, p := range pairs {
		if finite(p.Input) > 100 {
			divisor = 255
			break
		}
	}
	ink := NormalizeMeasurements(pairs, mode)
	pts := make([]lab_point, len(pairs))
	for i, p := range pairs {
		pts[i] = lab_point{math.Max(0, math.Min(divisor, finite(p.Input))) / divisor, ink[i]}
	}
	sort.SliceStable(pts, func(a, b int) bool { return pts[a].pos < pts[b].pos })
	// merge repeated positions
	ans := pts[:0]
	count := 0
	for _, p := range pts {
		if len(ans) > 0 && ans[len(ans)-1].pos == p.pos {
			last := &ans[len(ans)-1]
			count++
			last.ink += (p.ink - last.ink) / float64(count)
			continue
		}
		count = 1
		ans = append(ans, p)
	}
	return ans
}

func local_sigma(positions []float64, t float64) float64 {
	n := len(positions)
	if n <= 1 {
		return lab_sigma_ceil
	}
	lo := sort.SearchFloat64s(positions, t)
	dists := make([]float64, 0, lab_k_neighbors)
	left, right := lo-1, lo
	for (left >= 0 || right < n) && len(dists) < lab_k_neighbors {
		dl, dr := math.Inf(1), math.Inf(1)
		if left >= 0 {
			dl = math.Abs(t - positions[left])
		}
		if right < n {
			dr = math.Abs(t - positions[right])
		}
		if dl <= dr {
			dists = append(dists, dl)
			left--
		} else {
			dists = append(dists, dr)
			right++
		}
	}
	slices.Sort(dists)
	mid := len(dists) / 2
	median := dists[mid]
	if len(dists)%2 == 0 {
		median = (dists[mid-1] + dists[mid]) / 2
	}
	return math.Min(lab_sigma_ceil, math.Max(lab_sigma_floor, lab_sigma_alpha*median))
}

func smooth_ink(pts []lab_point, widen float64) []float64 {
	positions := make([]float64, len(pts))
	for i, p := range pts {
		positions[i] = p.pos
	}
	ans := make([]float64, len(pts))
	for i, p := range pts {
		sigma := math.Min(lab_sigma_ceil, math.Max(lab_sigma_floor, local_sigma(positions, p.pos)*widen))
		denom := math.Max(1e-9, 2*sigma*sigma)
		num, wsum := 0.0, 0.0
		for _, q := range pts {
			d := p.pos - q.pos
			w := math.Exp(-(d * d) / denom)
			num += q.ink * w
			wsum += w
		}
		if wsum > 0 {
			ans[i] = clamp01(num / wsum)
		} else {
			ans[i] = p.ink
		}
	}
	ans[0], ans[len(ans)-1] = clamp01(pts[0].ink), clamp01(pts[len(pts)-1].ink)
	for i := 1; i < len(ans); i++ {
		if ans[i] <= ans[i-1] {
			ans[i] = math.Min(1, ans[i-1]+lab_monotone_step)
		}
	}
	return ans
}

// RebuildFromPairs reconstructs a 256 sample linearization from measured
// pairs. Ink darkness is smoothed with a locally sized Gaussian kernel
// scaled by widen, interpolated with PCHIP and inverted by bisection so
// that sample i holds the input level that produces darkness i/255.
func RebuildFromPairs(pairs []MeasuredPair, mode NormalizationMode, widen float64) ([]float64, error) {
	if len(pairs) < 2 {
		return nil, ErrNotEnoughPoints
	}
	pts := lab_points(pairs, mode)
	if len(pts) < 2 {
		return nil, fmt.Errorf("%w: measurements collapse to %d distinct input level", ErrNotEnoughPoints, len(pts))
	}
	if !(widen > 0) {
		widen = 1
	}
	ink := smooth_ink(pts, widen)
	xs := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.pos
	}
	spline, err := interp.NewPCHIP(xs, ink)
	if err != nil {
		return nil, err
	}
	evaluate := func(t float64) float64 { return clamp01(spline(clamp01(t))) }
	lut := make([]float64, types.CurveResolution)
	for i := range lut {
		lut[i] = interp.Invert(evaluate, float64(i)/float64(len(lut)-1), lab_bisection_iter)
	}
	lut[0], lut[len(lut)-1] = 0, 1
	for i := 1; i < len(lut); i++ {
		lut[i] = math.Max(lut[i], lut[i-1])
	}
	return lut, nil
}

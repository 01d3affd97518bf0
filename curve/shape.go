package curve

import (
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

// EnforceMonotonic returns a copy of c made non-decreasing by carrying the
// running maximum forward.
func EnforceMonotonic(c types.Curve) types.Curve {
	ans := c.Clone()
	for i := 1; i < len(ans); i++ {
		ans[i] = max(ans[i], ans[i-1])
	}
	return ans
}

// IsMonotonic reports whether c never drops by more than ripple between
// neighbouring samples.
func IsMonotonic(c types.Curve, ripple int) bool {
	for i := 1; i < len(c); i++ {
		if c[i-1]-c[i] > ripple {
			return false
		}
	}
	return true
}

// PeakIndex is the first index holding the maximum value, -1 for an empty
// or inkless curve.
func PeakIndex(c types.Curve) int {
	idx, best := -1, 0
	for i, v := range c {
		if v > best {
			idx, best = i, v
		}
	}
	return idx
}

// last_peak_index is the last index holding the maximum, the far end of a
// plateau.
func last_peak_index(c types.Curve) int {
	idx, best := -1, 0
	for i, v := range c {
		if v > 0 && v >= best {
			idx, best = i, v
		}
	}
	return idx
}

// IsSinglePeak reports whether c rises to its peak and falls after it
// without any intermediate dips, within its active range.
func IsSinglePeak(c types.Curve) bool {
	p := PeakIndex(c)
	if p < 0 {
		return false
	}
	for i := 1; i <= p; i++ {
		if c[i] < c[i-1] {
			return false
		}
	}
	for i := p + 1; i < len(c); i++ {
		if c[i] > c[i-1] {
			return false
		}
	}
	return true
}

// EnforceSinglePeak shapes c to the single-peak form of baseline: when
// baseline rises to a peak at p and then falls, the result is made
// non-decreasing up to p and non-increasing after it, and keeps no ink
// outside the baseline's active range. When the baseline peaks in a plateau
// p is the plateau's last sample. Baselines that are not single-peaked leave
// c unchanged.
func EnforceSinglePeak(c, baseline types.Curve) types.Curve {
	ans := c.Clone()
	if len(c) != len(baseline) || !IsSinglePeak(baseline) {
		return ans
	}
	ar := DetectActiveRange(baseline)
	p := last_peak_index(baseline)
	for i := range ans {
		if !ar.Contains(i) {
			ans[i] = 0
		}
	}
	for i := ar.StartIndex + 1; i <= p; i++ {
		ans[i] = max(ans[i], ans[i-1])
	}
	for i := ar.EndIndex - 1; i > p; i-- {
		ans[i] = max(ans[i], ans[i+1])
	}
	// the two running maxima meet at the peak
	if p+1 < len(ans) {
		ans[p] = max(ans[p], ans[p+1])
	}
	return ans
}

// Package curve holds the single-channel primitives of the correction
// engine: active-range detection and remapping, monotonic and single-peak
// shaping, and slope smoothing.
package curve

import (
	"fmt"
	"math"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

// ActiveRange is the index interval of a curve that carries ink.
type ActiveRange struct {
	IsActive   bool
	StartIndex int
	EndIndex   int
	Span       int
}

var inactive = ActiveRange{StartIndex: -1, EndIndex: -1}

func (r ActiveRange) String() string {
	if !r.IsActive {
		return "ActiveRange{inactive}"
	}
	return fmt.Sprintf("ActiveRange{%d..%d}", r.StartIndex, r.EndIndex)
}

// Contains reports whether index i lies inside the range.
func (r ActiveRange) Contains(i int) bool {
	return r.IsActive && i >= r.StartIndex && i <= r.EndIndex
}

// DetectActiveRange finds the first and last samples of c carrying any ink.
// A curve without ink is reported inactive with indices of -1.
func DetectActiveRange(c types.Curve) ActiveRange {
	return DetectActiveRangeThreshold(c, 0)
}

// DetectActiveRangeThreshold treats samples <= threshold as carrying no ink.
func DetectActiveRangeThreshold(c types.Curve, threshold int) ActiveRange {
	start, end := -1, -1
	for i, v := range c {
		if v > threshold {
			start = i
			break
		}
	}
	if start < 0 {
		return inactive
	}
	for i := len(c) - 1; i >= start; i-- {
		if c[i] > threshold {
			end = i
			break
		}
	}
	return ActiveRange{IsActive: true, StartIndex: start, EndIndex: end, Span: end - start}
}

// RemapActiveRange maps each sample of base inside ar onto the same relative
// position of target's own active range, interpolating linearly between the
// two nearest target samples. Samples outside ar are zero, as is the whole
// result when either range is inactive. maxOutput <= 0 means TOTAL.
func RemapActiveRange(base, target types.Curve, ar ActiveRange, maxOutput int) types.Curve {
	ans := make(types.Curve, len(base))
	if len(base) == 0 || !ar.IsActive {
		return ans
	}
	tr := DetectActiveRange(target)
	if !tr.IsActive {
		return ans
	}
	if maxOutput <= 0 {
		maxOutput = types.TOTAL
	}
	base_span := float64(max(1, ar.Span))
	target_span := float64(max(1, tr.Span))
	at := func(idx int) float64 {
		return float64(target[max(tr.StartIndex, min(tr.EndIndex, idx))])
	}
	for i := range ans {
		if !ar.Contains(i) {
			continue
		}
		fraction := float64(i-ar.StartIndex) / base_span
		pos := float64(tr.StartIndex) + fraction*target_span
		lo := math.Floor(pos)
		alpha := pos - lo
		v := (1-alpha)*at(int(lo)) + alpha*at(int(math.Ceil(pos)))
		ans[i] = int(math.Round(math.Max(0, math.Min(float64(maxOutput), v))))
	}
	return ans
}

package correction

import (
	"math"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, finite(x)))
}

// ToPrinterSpace converts samples expressed in from into printer space,
// clamped to [0,1]. Image space runs the opposite way in both axes, so its
// samples are reversed and inverted.
func ToPrinterSpace(samples []float64, from types.SourceSpace) []float64 {
	n := len(samples)
	ans := make([]float64, n)
	for i, v := range samples {
		if from == types.SpaceImage {
			ans[n-1-i] = clamp01(1 - finite(v))
		} else {
			ans[i] = clamp01(v)
		}
	}
	return ans
}

// AnchorEndpoints pins the first sample to 0 and the last to 1.
func AnchorEndpoints(samples []float64) []float64 {
	ans := make([]float64, len(samples))
	copy(ans, samples)
	if len(ans) > 0 {
		ans[0] = 0
		ans[len(ans)-1] = 1
	}
	return ans
}

// SmoothSamples applies a Gaussian moving average whose width grows with
// percent, keeping both endpoints fixed. percent <= 0 returns a copy.
func SmoothSamples(samples []float64, percent float64) []float64 {
	n := len(samples)
	ans := make([]float64, n)
	copy(ans, samples)
	percent = math.Min(100, finite(percent))
	if n < 3 || percent <= 0 {
		return ans
	}
	sigma := math.Max(0.5, percent/100*float64(n)/8)
	radius := int(math.Ceil(3 * sigma))
	for i := 1; i < n-1; i++ {
		sum, wsum := 0.0, 0.0
		for j := max(0, i-radius); j <= min(n-1, i+radius); j++ {
			d := float64(j - i)
			w := math.Exp(-(d * d) / (2 * sigma * sigma))
			sum += samples[j] * w
			wsum += w
		}
		ans[i] = sum / wsum
	}
	return ans
}

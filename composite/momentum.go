package composite

import (
	"math"
)

const (
	momentum_window_radius = 2
	momentum_sigma         = 1.0
)

func gaussian_kernel(radius int, sigma float64) []float64 {
	radius = max(0, radius)
	if !(sigma > 0) {
		sigma = momentum_sigma
		if radius > 0 {
			sigma = float64(radius) / 1.5
		}
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for k := range kernel {
		d := float64(k - radius)
		kernel[k] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += kernel[k]
	}
	for k := range kernel {
		kernel[k] /= sum
	}
	return kernel
}

// GaussianMomentum returns the Gaussian weighted magnitude of the local
// slope of samples, normalized so that the largest value is 1.
func GaussianMomentum(samples []float64, radius int, sigma float64) []float64 {
	n := len(samples)
	ans := make([]float64, n)
	if n < 2 {
		return ans
	}
	deltas := make([]float64, n)
	deltas[0] = clamp01(samples[1]) - clamp01(samples[0])
	for i := 1; i < n; i++ {
		deltas[i] = clamp01(samples[i]) - clamp01(samples[i-1])
	}
	kernel := gaussian_kernel(radius, sigma)
	r := (len(kernel) - 1) / 2
	peak := 0.0
	for i := range ans {
		for k, w := range kernel {
			j := max(0, min(n-1, i+k-r))
			ans[i] += w * math.Abs(deltas[j])
		}
		peak = max(peak, ans[i])
	}
	if peak <= 0 {
		clear(ans)
		return ans
	}
	for i := range ans {
		ans[i] = clamp01(ans[i] / peak)
	}
	return ans
}

// ChannelMomentum is GaussianMomentum of a curve normalized by its end
// value, with the default window.
func ChannelMomentum(c []int, end int) []float64 {
	if len(c) == 0 || end <= 0 {
		return make([]float64, len(c))
	}
	n := make([]float64, len(c))
	for i, v := range c {
		n[i] = clamp01(float64(v) / float64(end))
	}
	return GaussianMomentum(n, momentum_window_radius, momentum_sigma)
}

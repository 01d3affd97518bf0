package curve

import (
	"math"
)

const (
	slope_window_radius  = 10
	slope_max_passes     = 6
	slope_tolerance      = 1e-4
	slope_min_window_len = 4
)

func slope_weights(n int) []float64 {
	w := make([]float64, n)
	center := float64(n-1) / 2
	sigma := math.Max(1.1, float64(n)*0.35)
	sum := 0.0
	for i := range w {
		d := float64(i) - center
		w[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

func monotonic_between(s []float64, start, end int) bool {
	up, down := true, true
	for i := start + 1; i <= end; i++ {
		if s[i] < s[i-1] {
			up = false
		}
		if s[i] > s[i-1] {
			down = false
		}
	}
	return up || down
}

func steep_regions(s []float64, threshold float64) (ans [][2]int) {
	start := -1
	for i := 1; i < len(s); i++ {
		steep := math.Abs(s[i]-s[i-1]) > threshold+slope_tolerance
		switch {
		case steep && start < 0:
			start = i
		case !steep && start >= 0:
			ans = append(ans, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		ans = append(ans, [2]int{start, len(s) - 1})
	}
	return
}

// SmoothSlopes spreads steps larger than threshold in a normalized series
// over a surrounding window, keeping the window endpoints fixed so the
// overall shape is preserved. Each pass widens the window. Samples marked in
// locked are never moved and windows are trimmed to avoid them. Windows that
// are not monotonic are left alone so peaks are never flattened.
func SmoothSlopes(series []float64, threshold float64, locked []bool) ([]float64, bool) {
	out := make([]float64, len(series))
	copy(out, series)
	if len(out) < slope_min_window_len || threshold <= 0 {
		return out, false
	}
	is_locked := func(i int) bool { return i < len(locked) && locked[i] }
	applied := false
	for pass := range slope_max_passes {
		regions := steep_regions(out, threshold)
		if len(regions) == 0 {
			break
		}
		radius := slope_window_radius * (pass + 1)
		changed := false
		for _, r := range regions {
			start, end := max(0, r[0]-1-radius), min(len(out)-1, r[1]+radius)
			for i := r[0] - 1; i >= start; i-- {
				if is_locked(i) && i < r[0]-1 {
					start = i + 1
					break
				}
			}
			for i := r[1]; i <= end; i++ {
				if is_locked(i) && i > r[1] {
					end = i - 1
					break
				}
			}
			if end-start+1 < slope_min_window_len || !monotonic_between(out, start, end) {
				continue
			}
			interior_locked := false
			for i := start + 1; i < end; i++ {
				if is_locked(i) {
					interior_locked = true
					break
				}
			}
			if interior_locked {
				continue
			}
			total := out[end] - out[start]
			w := slope_weights(end - start)
			for k := start + 1; k < end; k++ {
				out[k] = out[k-1] + total*w[k-start-1]
			}
			changed = true
		}
		if !changed {
			break
		}
		applied = true
	}
	return out, applied
}

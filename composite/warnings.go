package composite

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"maps"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

func format_input_percent(index, n int) string {
	return fmt.Sprintf("%.0f%%", math.Round(float64(index)/float64(max(1, n-1))*100))
}

// SaturatedIndices lists every sample at which c reaches ratio of end
// while the input is still below cutoff.
func SaturatedIndices(c types.Curve, end int, ratio, cutoff float64) (ans []int) {
	if end <= 0 || len(c) < 2 {
		return nil
	}
	limit := float64(end) * ratio
	for i, v := range c {
		if float64(i)/float64(len(c)-1) >= cutoff {
			break
		}
		if float64(v) >= limit {
			ans = append(ans, i)
		}
	}
	return
}

// SaturationIndex is the first of SaturatedIndices, or -1.
func SaturationIndex(c types.Curve, end int, ratio, cutoff float64) int {
	if idx := SaturatedIndices(c, end, ratio, cutoff); len(idx) > 0 {
		return idx[0]
	}
	return -1
}

// CollectWarnings reports channels that saturate too early and input
// levels at which several channels saturate together. Each group of
// channels saturating together is reported once, at the first sample they
// share. Channels are examined in the order given.
func CollectWarnings(order []types.ChannelName, curves map[types.ChannelName]types.Curve, ends map[types.ChannelName]int, ratio, cutoff float64) (ans []string) {
	by_index := map[int][]string{}
	for _, name := range order {
		c := curves[name]
		idx := SaturatedIndices(c, ends[name], ratio, cutoff)
		if len(idx) == 0 {
			continue
		}
		ans = append(ans, fmt.Sprintf("%s reaches ≥99%% ink near %s input", name, format_input_percent(idx[0], len(c))))
		for _, i := range idx {
			by_index[i] = append(by_index[i], string(name))
		}
	}
	seen := map[string]bool{}
	for _, i := range slices.Sorted(maps.Keys(by_index)) {
		names := by_index[i]
		key := strings.Join(names, ", ")
		if len(names) > 1 && !seen[key] {
			seen[key] = true
			ans = append(ans, fmt.Sprintf("multiple channels saturate near %s input (%s)", format_input_percent(i, types.CurveResolution), key))
		}
	}
	return
}

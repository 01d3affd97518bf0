package composite

import (
	"fmt"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

// ClampEvent records a sample where a channel hit its ceiling.
type ClampEvent struct {
	Index        int
	InputPercent float64
}

// CoverageEntry summarizes how close a channel came to its ceiling. All
// values are normalized to [0,1] of TOTAL.
type CoverageEntry struct {
	Limit         float64
	Buffer        float64
	BufferedLimit float64
	MaxNormalized float64
	// OverflowNormalized is the ink removed by clamping, summed over samples.
	OverflowNormalized float64
	Overflow           int
	ClampedSamples     []ClampEvent
}

// Headroom is the gap between the buffered ceiling and the peak ink use.
func (e CoverageEntry) Headroom() float64 { return e.BufferedLimit - e.MaxNormalized }

func (e CoverageEntry) String() string {
	return fmt.Sprintf("Coverage %.0f%% / %.0f%%", e.MaxNormalized*100, e.BufferedLimit*100)
}

func (e CoverageEntry) clone() CoverageEntry {
	e.ClampedSamples = append([]ClampEvent(nil), e.ClampedSamples...)
	return e
}

// Summary maps channels to their coverage. Keys are normalized channel
// names.
type Summary map[types.ChannelName]CoverageEntry

// Lookup finds the entry for a channel name in any case.
func (s Summary) Lookup(name string) (CoverageEntry, bool) {
	if s == nil {
		return CoverageEntry{}, false
	}
	e, ok := s[types.NormalizeChannel(name)]
	return e, ok
}

func (s Summary) Clone() Summary {
	if s == nil {
		return nil
	}
	ans := make(Summary, len(s))
	for k, v := range s {
		ans[k] = v.clone()
	}
	return ans
}

func new_coverage_entry(end int, buffer float64) CoverageEntry {
	limit := float64(max(0, min(types.TOTAL, end))) / types.TOTAL
	return CoverageEntry{Limit: limit, Buffer: buffer, BufferedLimit: max(0, limit-buffer)}
}

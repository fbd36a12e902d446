package rawdata

import (
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// DetectInterval returns the sampling interval in minutes (15, 30 or 60)
// from the most common spacing between consecutive samples of the same day.
// It returns 0 when there are not enough samples to tell. samples must be
// sorted as returned by Parse.
func DetectInterval(samples []types.Sample) int {
	counts := map[int]int{}
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if prev.Date != cur.Date {
			continue
		}
		if gap := cur.Minute - prev.Minute; gap > 0 {
			counts[gap]++
		}
	}

	mode, best := 0, 0
	for gap, n := range counts {
		// ties resolve to the shorter spacing
		if n > best || (n == best && gap < mode) {
			mode, best = gap, n
		}
	}
	switch {
	case mode == 0:
		return 0
	case mode <= 20:
		return 15
	case mode <= 45:
		return 30
	default:
		return 60
	}
}

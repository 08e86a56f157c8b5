package detector

import (
	"math"
	"sort"
)

// madFloor keeps the robust z-score finite on flat baselines where the
// median absolute deviation collapses to zero.
const madFloor = 1e-9

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mad(values []float64, med float64) float64 {
	if len(values) == 0 {
		return 0
	}
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - med)
	}
	return median(devs)
}

// robustScore is the consistency-scaled z-score against the window
// median. The sign carries direction: positive means above baseline.
func robustScore(value, med, madValue float64) float64 {
	if madValue < madFloor {
		madValue = madFloor
	}
	return 0.6745 * (value - med) / madValue
}

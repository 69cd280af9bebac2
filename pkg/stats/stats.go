// Package stats holds the shared numeric helpers used by the rollup
// aggregator and the query engine.
package stats

import (
	"math"
	"sort"
)

// Percentile returns the p-quantile (p in [0,1]) of values using linear
// interpolation between closest ranks. values does not need to be sorted.
// Returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return PercentileSorted(sorted, p)
}

// PercentileSorted is Percentile over an already-sorted ascending slice.
func PercentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := p * float64(n-1)
	k := int(math.Floor(rank))
	f := rank - float64(k)
	if f == 0 || k+1 >= n {
		return sorted[k]
	}
	return sorted[k]*(1-f) + sorted[k+1]*f
}

// Round4 rounds to 4 decimal places, the display precision used by the
// query API.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Package stats provides small numeric helpers shared by the test engine and
// the enrichment runner.
package stats

import (
	"cmp"
	"math"
	"slices"
)

// Clamp restricts val to the range [lo, hi].
func Clamp[T cmp.Ordered](val, lo, hi T) T {
	return max(lo, min(val, hi))
}

// Bonferroni returns the per-test significance threshold alpha/tests.
// Returns alpha unchanged when tests is zero or negative.
func Bonferroni(alpha float64, tests int) float64 {
	if tests <= 0 {
		return alpha
	}

	return alpha / float64(tests)
}

// Well-known percentile thresholds.
const (
	PercentileMedian = 0.5
)

// Percentile returns the p-th percentile of values using linear interpolation.
// p must be in [0, 1]. NaN values are ignored. The input slice is not
// modified. Returns NaN when no finite-or-infinite values remain.
func Percentile(values []float64, p float64) float64 {
	sorted := make([]float64, 0, len(values))

	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}

	count := len(sorted)
	if count == 0 {
		return math.NaN()
	}

	slices.Sort(sorted)

	idx := p * float64(count-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))

	if lower == upper || upper >= count {
		return sorted[lower]
	}

	frac := idx - float64(lower)

	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Median returns the 50th percentile of values.
func Median(values []float64) float64 {
	return Percentile(values, PercentileMedian)
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package features

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/rowlens/internal/analytics"
)

// fillValue computes the imputation value of a numeric column from its
// present values. The remove strategy has no fill value and returns 0.
func fillValue(present []float64, strategy analytics.MissingValueStrategy) float64 {
	if len(present) == 0 {
		return 0
	}

	switch strategy {
	case analytics.StrategyMean:
		return stat.Mean(present, nil)
	case analytics.StrategyMedian:
		return median(present)
	case analytics.StrategyMode:
		sorted := slices.Clone(present)
		slices.Sort(sorted)
		mode, _ := stat.Mode(sorted, nil)
		return mode
	default:
		return 0
	}
}

// median averages the two middle values of an even-length column.
func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

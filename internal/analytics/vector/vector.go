// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package vector provides the distance and similarity primitives shared by the
// anomaly and clustering models.
//
// All functions are total: malformed input (nil or mismatched vectors) yields a
// sentinel value instead of a panic so callers can treat it as "never merge".
package vector

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// EuclideanDistance returns the L2 distance between a and b.
// Returns +Inf if either vector is nil or the lengths differ.
func EuclideanDistance(a, b []float64) float64 {
	if a == nil || b == nil || len(a) != len(b) {
		return math.Inf(1)
	}
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, 2)
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 if either vector is nil, the lengths differ, or either vector has
// zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if a == nil || b == nil || len(a) != len(b) || len(a) == 0 {
		return 0
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	return floats.Dot(a, b) / (normA * normB)
}

// Centroid returns the component-wise mean of the given vectors.
// Returns nil for an empty input. Vectors must share the same length.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}

	sum := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		floats.Add(sum, v)
	}
	floats.Scale(1/float64(len(vectors)), sum)
	return sum
}

// WeightedAverage returns (a*wa + b*wb) / (wa + wb).
// If both weights are zero the plain mean of a and b is returned.
func WeightedAverage(a []float64, wa float64, b []float64, wb float64) []float64 {
	if len(a) != len(b) {
		return Clone(a)
	}

	total := wa + wb
	if total == 0 {
		wa, wb, total = 1, 1, 2
	}

	out := make([]float64, len(a))
	for i := range a {
		out[i] = (a[i]*wa + b[i]*wb) / total
	}
	return out
}

// Clone returns a copy of v (nil stays nil).
func Clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// CloneMatrix deep-copies a slice of vectors.
func CloneMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = Clone(row)
	}
	return out
}

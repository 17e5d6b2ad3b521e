// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package stats computes model summary statistics.
package stats

import (
	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/rowlens/internal/analytics"
)

// ForAnomaly summarises a density model over totalPoints processed points.
func ForAnomaly(totalPoints, dimensions int, clusters []analytics.DensityCluster, anomalyCount int) analytics.Stats {
	sizes := make([]int, len(clusters))
	for i, c := range clusters {
		sizes[i] = c.Size
	}

	var pct float64
	if totalPoints > 0 {
		pct = float64(anomalyCount) / float64(totalPoints) * 100
	}

	return analytics.Stats{
		TotalPoints:       totalPoints,
		Dimensions:        dimensions,
		ClusterCount:      len(clusters),
		ClusterSizes:      sizes,
		AnomalyCount:      anomalyCount,
		AnomalyPercentage: pct,
	}
}

// ForClusters summarises a centroid model. Total points is the sum of
// cluster sizes. AverageSimilarity is the mean of each non-empty cluster's
// mean similarity.
func ForClusters(clusters []analytics.Cluster, dimensions, adjustedK int) analytics.Stats {
	sizes := make([]int, len(clusters))
	total := 0
	means := make([]float64, 0, len(clusters))

	for i, c := range clusters {
		sizes[i] = c.Size
		total += c.Size
		if len(c.Similarities) > 0 {
			means = append(means, stat.Mean(c.Similarities, nil))
		}
	}

	var avg float64
	if len(means) > 0 {
		avg = stat.Mean(means, nil)
	}

	return analytics.Stats{
		TotalPoints:       total,
		Dimensions:        dimensions,
		ClusterCount:      len(clusters),
		ClusterSizes:      sizes,
		AverageSimilarity: avg,
		AdjustedK:         adjustedK,
	}
}

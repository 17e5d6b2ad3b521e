// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package anomaly

import (
	"context"

	"github.com/tomtom215/rowlens/internal/analytics/vector"
)

// Noise labels a point that belongs to no cluster.
const Noise = -1

const unvisited = -2

// DBSCAN labels each point with its cluster index (0..count-1) or Noise.
//
// A point is a core point when at least minPts points (itself included) lie
// within Euclidean distance eps. Clusters are grown from core points in index
// order, so labelling is deterministic for a given input order.
func DBSCAN(ctx context.Context, points [][]float64, eps float64, minPts int) (labels []int, count int, err error) {
	labels = make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		neighbours := regionQuery(points, i, eps)
		if len(neighbours) < minPts {
			labels[i] = Noise
			continue
		}

		cluster := count
		count++
		labels[i] = cluster

		queue := neighbours
		for q := 0; q < len(queue); q++ {
			j := queue[q]
			if labels[j] == Noise {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster

			if more := regionQuery(points, j, eps); len(more) >= minPts {
				queue = append(queue, more...)
			}
		}
	}

	return labels, count, nil
}

// regionQuery returns the indices of all points within eps of points[i].
func regionQuery(points [][]float64, i int, eps float64) []int {
	var out []int
	for j := range points {
		if vector.EuclideanDistance(points[i], points[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

// groups collects point indices per cluster label.
func groups(labels []int, count int) [][]int {
	out := make([][]int, count)
	for i, l := range labels {
		if l >= 0 {
			out[l] = append(out[l], i)
		}
	}
	return out
}

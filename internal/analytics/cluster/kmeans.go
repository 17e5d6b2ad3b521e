// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package cluster

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/tomtom215/rowlens/internal/analytics/vector"
)

// KMeans partitions points into k clusters.
//
// Centroids are seeded with k-means++ from a source seeded by seed, then
// refined with Lloyd iterations until assignments stop changing or maxIter is
// reached. An empty cluster is reseeded with the point farthest from its own
// centroid; a cluster that stays empty keeps its last centroid.
// It returns the centroids and the cluster index of every point.
func KMeans(ctx context.Context, points [][]float64, k, maxIter int, seed int64) ([][]float64, []int, error) {
	if len(points) == 0 || k <= 0 {
		return nil, nil, nil
	}
	k = min(k, len(points))

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // math/rand is fine for deterministic seeding
	centroids := seedPlusPlus(points, k, rng)

	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if !assignPoints(points, centroids, assign) {
			break
		}
		updateCentroids(points, centroids, assign)
	}

	return centroids, assign, nil
}

// seedPlusPlus picks k initial centroids, each new one with probability
// proportional to its squared distance from the nearest centroid so far.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, vector.Clone(points[rng.Intn(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		for i, p := range points {
			d := vector.EuclideanDistance(p, centroids[len(centroids)-1])
			if len(centroids) == 1 || d*d < dist[i] {
				dist[i] = d * d
			}
		}

		total := floats.Sum(dist)
		if total == 0 {
			// every point coincides with a centroid
			centroids = append(centroids, vector.Clone(points[rng.Intn(len(points))]))
			continue
		}

		target := rng.Float64() * total
		next := -1
		for i, d := range dist {
			if d == 0 {
				continue
			}
			next = i
			target -= d
			if target <= 0 {
				break
			}
		}
		centroids = append(centroids, vector.Clone(points[next]))
	}

	return centroids
}

// assignPoints moves every point to its nearest centroid (lowest index on
// ties) and reports whether any assignment changed.
func assignPoints(points, centroids [][]float64, assign []int) bool {
	changed := false
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := vector.EuclideanDistance(p, centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		if assign[i] != best {
			assign[i] = best
			changed = true
		}
	}
	return changed
}

// updateCentroids recomputes each centroid as the mean of its points.
func updateCentroids(points, centroids [][]float64, assign []int) {
	dims := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}

	for i, p := range points {
		floats.Add(sums[assign[i]], p)
		counts[assign[i]]++
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
		centroids[c] = sums[c]
	}

	for c := range centroids {
		if counts[c] > 0 {
			continue
		}
		if i := farthestPoint(points, centroids, assign, counts); i >= 0 {
			counts[assign[i]]--
			assign[i] = c
			counts[c]++
			centroids[c] = vector.Clone(points[i])
		}
	}
}

// farthestPoint returns the point farthest from its centroid among clusters
// that can spare a member, or -1.
func farthestPoint(points, centroids [][]float64, assign, counts []int) int {
	best, bestDist := -1, -1.0
	for i, p := range points {
		if counts[assign[i]] < 2 {
			continue
		}
		if d := vector.EuclideanDistance(p, centroids[assign[i]]); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

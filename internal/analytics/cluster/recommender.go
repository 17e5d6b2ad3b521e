// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package cluster implements the centroid-based recommendation model.
//
// Training runs k-means with a cluster count adjusted to the batch size and
// records, for every member, the cosine similarity between the point and its
// cluster centroid. Merging clusters the new batch alone and matches each new
// cluster against the model's clusters by centroid similarity: a match above
// the threshold is folded in with a size-weighted centroid, anything else is
// appended as a new cluster.
package cluster

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/analytics/stats"
	"github.com/tomtom215/rowlens/internal/analytics/vector"
)

// Recommender trains and merges recommendation models.
type Recommender struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewRecommender creates a recommendation trainer.
//
//nolint:gocritic // logger passed by value is the zerolog convention
func NewRecommender(logger zerolog.Logger) *Recommender {
	return &Recommender{
		logger: logger.With().Str("component", "cluster").Logger(),
		now:    time.Now,
	}
}

var _ analytics.Trainer = (*Recommender)(nil)

// Kind returns analytics.KindRecommendation.
func (r *Recommender) Kind() analytics.ModelKind {
	return analytics.KindRecommendation
}

// AdjustedK is the cluster count used for a batch of n points:
// max(2, n/minClusterSize), capped at k and at n.
func AdjustedK(n, k, minClusterSize int) int {
	if minClusterSize < 1 {
		minClusterSize = 1
	}
	return min(max(2, n/minClusterSize), k, n)
}

// Train clusters the batch from scratch.
//
//nolint:gocritic // hugeParam: tuning passed by value for immutability
func (r *Recommender) Train(ctx context.Context, batch analytics.Batch, tuning analytics.Tuning) (*analytics.Model, error) {
	n := len(batch.Matrix)
	if n < tuning.MinClusterSize {
		return nil, fmt.Errorf("%w: %d points, need at least %d", analytics.ErrInsufficientData, n, tuning.MinClusterSize)
	}

	k := AdjustedK(n, tuning.K, tuning.MinClusterSize)
	clusters, err := r.cluster(ctx, batch, tuning, k, 0)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Int("points", n).
		Int("requested_k", tuning.K).
		Int("adjusted_k", k).
		Msg("kmeans complete")

	return &analytics.Model{
		Kind:        analytics.KindRecommendation,
		Clusters:    clusters,
		Processors:  batch.Processors,
		Tuning:      tuning.Clone(),
		Stats:       stats.ForClusters(clusters, batch.Matrix.Dimensions(), k),
		LastUpdated: r.now(),
	}, nil
}

// Merge folds the batch into a copy of existing. A batch smaller than the
// minimum cluster size leaves the model unchanged.
//
//nolint:gocritic // hugeParam: tuning passed by value for immutability
func (r *Recommender) Merge(ctx context.Context, existing *analytics.Model, batch analytics.Batch, tuning analytics.Tuning) (*analytics.Model, error) {
	n := len(batch.Matrix)
	if n < tuning.MinClusterSize {
		r.logger.Debug().
			Int("points", n).
			Int("min_cluster_size", tuning.MinClusterSize).
			Msg("batch too small, merge skipped")
		return existing.Clone(), nil
	}
	if dims := existing.Stats.Dimensions; dims > 0 && batch.Matrix.Dimensions() != dims {
		return nil, fmt.Errorf("%w: batch has %d dimensions, model has %d",
			analytics.ErrInconsistentDimension, batch.Matrix.Dimensions(), dims)
	}

	fresh, err := r.cluster(ctx, batch, tuning, AdjustedK(n, tuning.K, tuning.MinClusterSize), existing.Stats.TotalPoints)
	if err != nil {
		return nil, err
	}

	merged := existing.Clone()
	outcome := analytics.MergeOutcome{}

	nextID := 0
	for _, c := range merged.Clusters {
		nextID = max(nextID, c.ID+1)
	}

	// New clusters match against the clusters the model had before this
	// merge; clusters appended here are never merge targets.
	for _, c := range fresh {
		if c.Size == 0 {
			continue
		}

		best, bestSim := -1, 0.0
		for i := range existing.Clusters {
			sim := centroidSimilarity(tuning.MergeSimilarity, c.Centroid, existing.Clusters[i].Centroid)
			if best < 0 || sim > bestSim {
				best, bestSim = i, sim
			}
		}

		if best >= 0 && bestSim > tuning.SimilarityThreshold {
			absorb(&merged.Clusters[best], c)
			outcome.Merged++
			continue
		}

		c.ID = nextID
		nextID++
		merged.Clusters = append(merged.Clusters, c)
		outcome.Appended++
	}

	merged.Stats = stats.ForClusters(merged.Clusters, existing.Stats.Dimensions, existing.Stats.AdjustedK)
	merged.Tuning = tuning.Clone()
	merged.LastMerge = &outcome
	merged.LastUpdated = r.now()

	r.logger.Debug().
		Int("new_points", n).
		Int("clusters_merged", outcome.Merged).
		Int("clusters_appended", outcome.Appended).
		Msg("cluster merge complete")

	return merged, nil
}

// absorb folds src into dst. The centroid is the size-weighted average with
// the existing side weighted by its share of the post-merge size.
func absorb(dst *analytics.Cluster, src analytics.Cluster) {
	dst.MemberRowIDs = append(dst.MemberRowIDs, src.MemberRowIDs...)
	dst.Similarities = append(dst.Similarities, src.Similarities...)
	dst.Size = len(dst.MemberRowIDs)

	existingWeight := float64(dst.Size - src.Size)
	newWeight := float64(src.Size)
	dst.Centroid = vector.WeightedAverage(dst.Centroid, existingWeight, src.Centroid, newWeight)
}

func centroidSimilarity(metric analytics.SimilarityMetric, a, b []float64) float64 {
	if metric == analytics.SimilarityEuclidean {
		return 1 / (1 + vector.EuclideanDistance(a, b))
	}
	return vector.CosineSimilarity(a, b)
}

// cluster runs k-means over the batch and builds one Cluster per centroid.
// Row identifiers fall back to the global index, offset by offset.
//
//nolint:gocritic // hugeParam: tuning passed by value for immutability
func (r *Recommender) cluster(ctx context.Context, batch analytics.Batch, tuning analytics.Tuning, k, offset int) ([]analytics.Cluster, error) {
	centroids, assign, err := KMeans(ctx, batch.Matrix, k, tuning.MaxIterations, tuning.Seed)
	if err != nil {
		return nil, err
	}

	clusters := make([]analytics.Cluster, len(centroids))
	for c := range centroids {
		clusters[c] = analytics.Cluster{
			ID:           c,
			Centroid:     centroids[c],
			MemberRowIDs: []string{},
			Similarities: []float64{},
		}
	}

	for i, c := range assign {
		var row analytics.Row
		if i < len(batch.Rows) {
			row = batch.Rows[i]
		}
		cl := &clusters[c]
		cl.MemberRowIDs = append(cl.MemberRowIDs, RowID(row, tuning.IDField, offset+i))
		cl.Similarities = append(cl.Similarities, vector.CosineSimilarity(batch.Matrix[i], cl.Centroid))
		cl.Size++
	}

	return clusters, nil
}

// RowID is the row's ID field rendered as a string, or its global index when
// the row has no ID.
func RowID(row analytics.Row, idField string, index int) string {
	if idField != "" {
		if v, ok := row[idField]; ok && v != nil {
			if f, ok := analytics.ToFloat(v); ok && f == float64(int64(f)) {
				return strconv.FormatInt(int64(f), 10)
			}
			return analytics.CategoryString(v)
		}
	}
	return strconv.Itoa(index)
}

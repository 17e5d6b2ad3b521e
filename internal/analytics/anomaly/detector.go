// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package anomaly implements the density-based anomaly model.
//
// Training runs DBSCAN over the batch; every point that no cluster claims is
// recorded as an anomaly together with its source row. Merging clusters the
// new batch alone and folds the result into the existing model:
//
//   - a new cluster is appended only when its centroid is farther than eps
//     from every existing cluster centroid; otherwise it is dropped and its
//     points stay unaccounted for until the next full retrain
//   - a new anomaly is a duplicate when it lies within eps of an anomaly that
//     was already recorded, so re-merging the same batch is idempotent
package anomaly

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/analytics/stats"
	"github.com/tomtom215/rowlens/internal/analytics/vector"
)

// Detector trains and merges anomaly models.
type Detector struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewDetector creates an anomaly detector.
//
//nolint:gocritic // logger passed by value is the zerolog convention
func NewDetector(logger zerolog.Logger) *Detector {
	return &Detector{
		logger: logger.With().Str("component", "anomaly").Logger(),
		now:    time.Now,
	}
}

var _ analytics.Trainer = (*Detector)(nil)

// Kind returns analytics.KindAnomaly.
func (d *Detector) Kind() analytics.ModelKind {
	return analytics.KindAnomaly
}

// Train runs DBSCAN over the batch and records unclaimed points as anomalies.
//
//nolint:gocritic // hugeParam: tuning passed by value for immutability
func (d *Detector) Train(ctx context.Context, batch analytics.Batch, tuning analytics.Tuning) (*analytics.Model, error) {
	if len(batch.Matrix) == 0 {
		return nil, analytics.ErrEmptyBatch
	}

	clusters, anomalies, err := d.detect(ctx, batch, tuning, 0, 0)
	if err != nil {
		return nil, err
	}

	n := len(batch.Matrix)
	dims := batch.Matrix.Dimensions()

	d.logger.Debug().
		Int("points", n).
		Int("clusters", len(clusters)).
		Int("anomalies", len(anomalies)).
		Msg("dbscan complete")

	return &analytics.Model{
		Kind:            analytics.KindAnomaly,
		DensityClusters: clusters,
		Anomalies:       anomalies,
		ProcessedData:   vector.CloneMatrix(batch.Matrix),
		Processors:      batch.Processors,
		Tuning:          tuning.Clone(),
		Stats:           stats.ForAnomaly(n, dims, clusters, len(anomalies)),
		LastUpdated:     d.now(),
	}, nil
}

// Merge folds the batch into a copy of existing.
//
//nolint:gocritic // hugeParam: tuning passed by value for immutability
func (d *Detector) Merge(ctx context.Context, existing *analytics.Model, batch analytics.Batch, tuning analytics.Tuning) (*analytics.Model, error) {
	if len(batch.Matrix) == 0 {
		return nil, analytics.ErrEmptyBatch
	}
	if dims := existing.Stats.Dimensions; dims > 0 && batch.Matrix.Dimensions() != dims {
		return nil, fmt.Errorf("%w: batch has %d dimensions, model has %d",
			analytics.ErrInconsistentDimension, batch.Matrix.Dimensions(), dims)
	}

	offset := len(existing.ProcessedData)
	nextID := 0
	for _, c := range existing.DensityClusters {
		nextID = max(nextID, c.ID+1)
	}

	fresh, freshAnomalies, err := d.detect(ctx, batch, tuning, offset, nextID)
	if err != nil {
		return nil, err
	}

	merged := existing.Clone()
	outcome := analytics.MergeOutcome{}

	for _, c := range fresh {
		if nearestCentroid(c.Centroid, existing.DensityClusters) > tuning.Eps {
			c.ID = nextID
			nextID++
			merged.DensityClusters = append(merged.DensityClusters, c)
			outcome.Appended++
		} else {
			outcome.Dropped++
		}
	}

	for _, a := range freshAnomalies {
		if nearestAnomaly(a.Features, existing.Anomalies) < tuning.Eps {
			outcome.Duplicates++
			continue
		}
		merged.Anomalies = append(merged.Anomalies, a)
		outcome.AnomaliesAdded++
	}

	merged.ProcessedData = append(merged.ProcessedData, vector.CloneMatrix(batch.Matrix)...)

	dims := existing.Stats.Dimensions
	if dims == 0 {
		dims = batch.Matrix.Dimensions()
	}
	merged.Stats = stats.ForAnomaly(len(merged.ProcessedData), dims, merged.DensityClusters, len(merged.Anomalies))
	merged.Tuning = tuning.Clone()
	merged.LastMerge = &outcome
	merged.LastUpdated = d.now()

	d.logger.Debug().
		Int("new_points", len(batch.Matrix)).
		Int("clusters_appended", outcome.Appended).
		Int("clusters_dropped", outcome.Dropped).
		Int("anomalies_added", outcome.AnomaliesAdded).
		Int("anomalies_duplicate", outcome.Duplicates).
		Msg("anomaly merge complete")

	return merged, nil
}

// detect runs DBSCAN on the batch and converts the labels into density
// clusters and anomaly points. Indices are shifted by offset and cluster IDs
// start at firstID.
//
//nolint:gocritic // hugeParam: tuning passed by value for immutability
func (d *Detector) detect(ctx context.Context, batch analytics.Batch, tuning analytics.Tuning, offset, firstID int) ([]analytics.DensityCluster, []analytics.AnomalyPoint, error) {
	labels, count, err := DBSCAN(ctx, batch.Matrix, tuning.Eps, tuning.MinPts)
	if err != nil {
		return nil, nil, err
	}

	clusters := make([]analytics.DensityCluster, 0, count)
	for i, members := range groups(labels, count) {
		points := make([][]float64, len(members))
		indices := make([]int, len(members))
		for j, idx := range members {
			points[j] = batch.Matrix[idx]
			indices[j] = idx + offset
		}
		clusters = append(clusters, analytics.DensityCluster{
			ID:       firstID + i,
			Indices:  indices,
			Centroid: vector.Centroid(points),
			Size:     len(members),
		})
	}

	var anomalies []analytics.AnomalyPoint
	for i, l := range labels {
		if l != Noise {
			continue
		}
		var row analytics.Row
		if i < len(batch.Rows) {
			row = maps.Clone(batch.Rows[i])
		}
		anomalies = append(anomalies, analytics.AnomalyPoint{
			Index:    i + offset,
			Row:      row,
			Features: slices.Clone(batch.Matrix[i]),
		})
	}

	return clusters, anomalies, nil
}

// nearestCentroid returns the smallest distance from c to any cluster centroid,
// +Inf when there are none.
func nearestCentroid(c []float64, clusters []analytics.DensityCluster) float64 {
	best := math.Inf(1)
	for _, existing := range clusters {
		best = math.Min(best, vector.EuclideanDistance(c, existing.Centroid))
	}
	return best
}

// nearestAnomaly returns the smallest distance from f to any recorded anomaly,
// +Inf when there are none.
func nearestAnomaly(f []float64, anomalies []analytics.AnomalyPoint) float64 {
	best := math.Inf(1)
	for _, a := range anomalies {
		best = math.Min(best, vector.EuclideanDistance(f, a.Features))
	}
	return best
}

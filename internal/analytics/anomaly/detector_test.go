// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package anomaly

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
)

func newTestDetector() *Detector {
	d := NewDetector(zerolog.Nop())
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return d
}

func batchOf(points [][]float64) analytics.Batch {
	rows := make([]analytics.Row, len(points))
	for i := range points {
		rows[i] = analytics.Row{"n": i}
	}
	return analytics.Batch{Matrix: points, Rows: rows}
}

// two tight groups and one far outlier
var trainPoints = [][]float64{
	{0, 0}, {0.1, 0}, {0, 0.1},
	{5, 5}, {5.1, 5}, {5, 5.1},
	{20, 20},
}

func TestDBSCAN(t *testing.T) {
	labels, count, err := DBSCAN(context.Background(), trainPoints, 0.5, 2)
	if err != nil {
		t.Fatalf("DBSCAN() error = %v", err)
	}

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	want := []int{0, 0, 0, 1, 1, 1, Noise}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("labels = %v, want %v", labels, want)
	}
}

func TestDBSCAN_BorderPoint(t *testing.T) {
	// 1.05 only reaches 0.6; with minPts 3 it is a border point.
	points := [][]float64{{0}, {0.3}, {0.6}, {1.05}}

	labels, count, err := DBSCAN(context.Background(), points, 0.5, 3)
	if err != nil {
		t.Fatalf("DBSCAN() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if labels[3] != 0 {
		t.Errorf("labels[3] = %d, want 0 (border point)", labels[3])
	}
}

func TestDetector_Train(t *testing.T) {
	model, err := newTestDetector().Train(context.Background(), batchOf(trainPoints), analytics.DefaultTuning())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if len(model.DensityClusters) != 2 {
		t.Fatalf("len(DensityClusters) = %d, want 2", len(model.DensityClusters))
	}
	if len(model.Anomalies) != 1 {
		t.Fatalf("len(Anomalies) = %d, want 1", len(model.Anomalies))
	}

	a := model.Anomalies[0]
	if a.Index != 6 {
		t.Errorf("Anomalies[0].Index = %d, want 6", a.Index)
	}
	if a.Row["n"] != 6 {
		t.Errorf("Anomalies[0].Row = %v, want n=6", a.Row)
	}
	if !reflect.DeepEqual(a.Features, []float64{20, 20}) {
		t.Errorf("Anomalies[0].Features = %v, want [20 20]", a.Features)
	}

	s := model.Stats
	if s.TotalPoints != 7 || s.Dimensions != 2 || s.ClusterCount != 2 || s.AnomalyCount != 1 {
		t.Errorf("Stats = %+v", s)
	}
	if !reflect.DeepEqual(s.ClusterSizes, []int{3, 3}) {
		t.Errorf("ClusterSizes = %v, want [3 3]", s.ClusterSizes)
	}
}

func TestDetector_EmptyBatch(t *testing.T) {
	d := newTestDetector()
	tuning := analytics.DefaultTuning()

	if _, err := d.Train(context.Background(), analytics.Batch{}, tuning); !errors.Is(err, analytics.ErrEmptyBatch) {
		t.Errorf("Train() error = %v, want %v", err, analytics.ErrEmptyBatch)
	}

	existing, err := d.Train(context.Background(), batchOf(trainPoints), tuning)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if _, err := d.Merge(context.Background(), existing, analytics.Batch{}, tuning); !errors.Is(err, analytics.ErrEmptyBatch) {
		t.Errorf("Merge() error = %v, want %v", err, analytics.ErrEmptyBatch)
	}
}

func TestDetector_Merge(t *testing.T) {
	d := newTestDetector()
	tuning := analytics.DefaultTuning()

	existing, err := d.Train(context.Background(), batchOf(trainPoints), tuning)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	next := [][]float64{
		{0.05, 0.05}, {0.1, 0.1}, // near the first existing cluster: dropped
		{10, 10}, {10.1, 10}, // novel cluster: appended
		{-30, -30}, // new anomaly
	}

	merged, err := d.Merge(context.Background(), existing, batchOf(next), tuning)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if len(merged.DensityClusters) != 3 {
		t.Fatalf("len(DensityClusters) = %d, want 3", len(merged.DensityClusters))
	}
	appended := merged.DensityClusters[2]
	if appended.ID != 2 {
		t.Errorf("appended ID = %d, want 2", appended.ID)
	}
	if !reflect.DeepEqual(appended.Indices, []int{9, 10}) {
		t.Errorf("appended Indices = %v, want [9 10]", appended.Indices)
	}

	if len(merged.Anomalies) != 2 {
		t.Fatalf("len(Anomalies) = %d, want 2", len(merged.Anomalies))
	}
	if merged.Anomalies[1].Index != 11 {
		t.Errorf("new anomaly Index = %d, want 11", merged.Anomalies[1].Index)
	}

	if len(merged.ProcessedData) != 12 {
		t.Errorf("len(ProcessedData) = %d, want 12", len(merged.ProcessedData))
	}
	if merged.Stats.TotalPoints != 12 || merged.Stats.AnomalyCount != 2 {
		t.Errorf("Stats = %+v", merged.Stats)
	}

	want := analytics.MergeOutcome{Appended: 1, Dropped: 1, AnomaliesAdded: 1}
	if *merged.LastMerge != want {
		t.Errorf("LastMerge = %+v, want %+v", *merged.LastMerge, want)
	}
}

func TestDetector_MergeDoesNotMutateExisting(t *testing.T) {
	d := newTestDetector()
	tuning := analytics.DefaultTuning()

	existing, err := d.Train(context.Background(), batchOf(trainPoints), tuning)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	snapshot := existing.Clone()

	if _, err := d.Merge(context.Background(), existing, batchOf([][]float64{{40, 40}, {9, 9}}), tuning); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if !reflect.DeepEqual(existing, snapshot) {
		t.Error("Merge() mutated the existing model")
	}
}

func TestDetector_IdempotentDedup(t *testing.T) {
	d := newTestDetector()
	tuning := analytics.DefaultTuning()

	existing, err := d.Train(context.Background(), batchOf(trainPoints), tuning)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	next := batchOf([][]float64{{-30, -30}, {50, 50}})

	once, err := d.Merge(context.Background(), existing, next, tuning)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	twice, err := d.Merge(context.Background(), once, next, tuning)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if len(once.Anomalies) != 3 {
		t.Errorf("after first merge len(Anomalies) = %d, want 3", len(once.Anomalies))
	}
	if len(twice.Anomalies) != len(once.Anomalies) {
		t.Errorf("after second merge len(Anomalies) = %d, want %d", len(twice.Anomalies), len(once.Anomalies))
	}
	if twice.LastMerge.Duplicates != 2 {
		t.Errorf("Duplicates = %d, want 2", twice.LastMerge.Duplicates)
	}
}

func TestDetector_MergeDimensionMismatch(t *testing.T) {
	d := newTestDetector()
	tuning := analytics.DefaultTuning()

	existing, err := d.Train(context.Background(), batchOf(trainPoints), tuning)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	_, err = d.Merge(context.Background(), existing, batchOf([][]float64{{1, 2, 3}}), tuning)
	if !errors.Is(err, analytics.ErrInconsistentDimension) {
		t.Errorf("Merge() error = %v, want %v", err, analytics.ErrInconsistentDimension)
	}
}

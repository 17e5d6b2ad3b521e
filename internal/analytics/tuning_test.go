// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package analytics

import (
	"errors"
	"testing"
)

func TestDefaultTuning(t *testing.T) {
	tuning := DefaultTuning()

	if err := tuning.Validate(); err != nil {
		t.Fatalf("DefaultTuning().Validate() error = %v", err)
	}
	if tuning.Eps != 0.5 {
		t.Errorf("Eps = %v, want 0.5", tuning.Eps)
	}
	if tuning.MinPts != 2 {
		t.Errorf("MinPts = %v, want 2", tuning.MinPts)
	}
	if tuning.K != 3 {
		t.Errorf("K = %v, want 3", tuning.K)
	}
	if tuning.MinClusterSize != 2 {
		t.Errorf("MinClusterSize = %v, want 2", tuning.MinClusterSize)
	}
	if tuning.SimilarityThreshold != 0.5 {
		t.Errorf("SimilarityThreshold = %v, want 0.5", tuning.SimilarityThreshold)
	}
	if tuning.ScalingRange != [2]float64{0, 1} {
		t.Errorf("ScalingRange = %v, want [0 1]", tuning.ScalingRange)
	}
	if tuning.MissingValueStrategy != StrategyMean {
		t.Errorf("MissingValueStrategy = %v, want mean", tuning.MissingValueStrategy)
	}
	if len(tuning.WeightedFields) != 0 {
		t.Errorf("WeightedFields = %v, want empty", tuning.WeightedFields)
	}
}

func TestTuning_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Tuning)
	}{
		{"zero eps", func(c *Tuning) { c.Eps = 0 }},
		{"zero min_pts", func(c *Tuning) { c.MinPts = 0 }},
		{"zero k", func(c *Tuning) { c.K = 0 }},
		{"zero min_cluster_size", func(c *Tuning) { c.MinClusterSize = 0 }},
		{"threshold above 1", func(c *Tuning) { c.SimilarityThreshold = 1.5 }},
		{"inverted scaling range", func(c *Tuning) { c.ScalingRange = [2]float64{1, 0} }},
		{"unknown strategy", func(c *Tuning) { c.MissingValueStrategy = "interpolate" }},
		{"unknown merge similarity", func(c *Tuning) { c.MergeSimilarity = "jaccard" }},
		{"zero max_iterations", func(c *Tuning) { c.MaxIterations = 0 }},
		{"negative weight", func(c *Tuning) { c.WeightedFields = map[string]float64{"a": -1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tuning := DefaultTuning()
			tt.modify(&tuning)

			err := tuning.Validate()
			if !errors.Is(err, ErrInvalidTuning) {
				t.Errorf("Validate() error = %v, want %v", err, ErrInvalidTuning)
			}
		})
	}
}

func TestTuning_Clone(t *testing.T) {
	orig := DefaultTuning()
	orig.WeightedFields["a"] = 2

	clone := orig.Clone()
	clone.WeightedFields["a"] = 5

	if orig.WeightedFields["a"] != 2 {
		t.Error("Clone() shares WeightedFields with the original")
	}
}

func TestTuning_Merge(t *testing.T) {
	base := DefaultTuning()
	base.WeightedFields["keep"] = 3

	eps := 1.25
	k := 5
	strategy := StrategyMedian
	scaling := [2]float64{-1, 1}

	got := base.Merge(TuningOverride{
		Eps:                  &eps,
		K:                    &k,
		MissingValueStrategy: &strategy,
		ScalingRange:         &scaling,
		WeightedFields:       map[string]float64{"amount": 2},
	})

	if got.Eps != 1.25 || got.K != 5 {
		t.Errorf("Merge() = {eps:%v k:%v}, want {eps:1.25 k:5}", got.Eps, got.K)
	}
	if got.MissingValueStrategy != StrategyMedian {
		t.Errorf("MissingValueStrategy = %v, want median", got.MissingValueStrategy)
	}
	if got.ScalingRange != scaling {
		t.Errorf("ScalingRange = %v, want %v", got.ScalingRange, scaling)
	}
	if got.MinPts != base.MinPts {
		t.Errorf("MinPts = %v, want unchanged %v", got.MinPts, base.MinPts)
	}
	if got.Weight("keep") != 3 || got.Weight("amount") != 2 || got.Weight("other") != 1 {
		t.Errorf("WeightedFields = %v", got.WeightedFields)
	}
	if _, ok := base.WeightedFields["amount"]; ok {
		t.Error("Merge() modified the base tuning")
	}
}

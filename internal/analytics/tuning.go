// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package analytics

import (
	"fmt"
	"maps"
)

// MissingValueStrategy selects how missing numeric values are imputed.
type MissingValueStrategy string

const (
	// StrategyMean fills missing values with the column mean.
	StrategyMean MissingValueStrategy = "mean"

	// StrategyMedian fills missing values with the column median.
	StrategyMedian MissingValueStrategy = "median"

	// StrategyMode fills missing values with the most frequent column value.
	StrategyMode MissingValueStrategy = "mode"

	// StrategyZero fills missing values with 0.
	StrategyZero MissingValueStrategy = "zero"

	// StrategyRemove drops records that have a missing numeric value.
	StrategyRemove MissingValueStrategy = "remove"
)

// Valid reports whether s is one of the known strategies.
func (s MissingValueStrategy) Valid() bool {
	switch s {
	case StrategyMean, StrategyMedian, StrategyMode, StrategyZero, StrategyRemove:
		return true
	default:
		return false
	}
}

// SimilarityMetric selects how centroids are compared when merging clusters.
type SimilarityMetric string

const (
	// SimilarityCosine compares centroid directions. A zero-magnitude
	// centroid has similarity 0 to everything, so a new cluster near the
	// origin joins the existing cluster it points toward rather than the
	// nearest one. Use SimilarityEuclidean for nearest-centroid merges.
	SimilarityCosine SimilarityMetric = "cosine"

	// SimilarityEuclidean maps centroid distance d to 1/(1+d).
	SimilarityEuclidean SimilarityMetric = "euclidean"
)

// Valid reports whether m is one of the known metrics.
func (m SimilarityMetric) Valid() bool {
	return m == SimilarityCosine || m == SimilarityEuclidean
}

// Tuning holds every parameter that influences feature building and training.
// A Tuning value is resolved once per call (defaults merged with the
// endpoint override) and passed down explicitly.
type Tuning struct {
	// Eps is the DBSCAN neighbourhood radius. It is also the distance below
	// which a merged anomaly counts as a duplicate.
	// Default: 0.5.
	Eps float64 `json:"eps" koanf:"eps"`

	// MinPts is the DBSCAN core-point threshold (the point itself included).
	// Default: 2.
	MinPts int `json:"min_pts" koanf:"min_pts"`

	// K is the requested number of k-means clusters before adjustment.
	// Default: 3.
	K int `json:"k" koanf:"k"`

	// MinClusterSize is the minimum number of points required to cluster.
	// Default: 2.
	MinClusterSize int `json:"min_cluster_size" koanf:"min_cluster_size"`

	// WeightedFields multiplies a field's encoded sub-vector. Missing fields weigh 1.
	WeightedFields map[string]float64 `json:"weighted_fields,omitempty" koanf:"weighted_fields"`

	// SimilarityThreshold is the centroid similarity above which a new
	// cluster merges into an existing one.
	// Default: 0.5.
	SimilarityThreshold float64 `json:"similarity_threshold" koanf:"similarity_threshold"`

	// MergeSimilarity is the centroid comparison used by cluster merges.
	// Default: cosine.
	MergeSimilarity SimilarityMetric `json:"merge_similarity" koanf:"merge_similarity"`

	// ScalingRange is the [lo, hi] target range of min-max scaling.
	// Default: [0, 1].
	ScalingRange [2]float64 `json:"scaling_range" koanf:"scaling_range"`

	// MissingValueStrategy selects numeric imputation.
	// Default: mean.
	MissingValueStrategy MissingValueStrategy `json:"missing_value_strategy" koanf:"missing_value_strategy"`

	// IDField names the row attribute used as the member identifier in
	// recommendation clusters. It is never used as a feature.
	// Default: "id".
	IDField string `json:"id_field" koanf:"id_field"`

	// MaxIterations bounds the Lloyd iterations of k-means.
	// Default: 100.
	MaxIterations int `json:"max_iterations" koanf:"max_iterations"`

	// Seed makes k-means initialisation deterministic.
	// Default: 42.
	Seed int64 `json:"seed" koanf:"seed"`
}

// DefaultTuning returns the default tuning parameters.
func DefaultTuning() Tuning {
	return Tuning{
		Eps:                  0.5,
		MinPts:               2,
		K:                    3,
		MinClusterSize:       2,
		WeightedFields:       map[string]float64{},
		SimilarityThreshold:  0.5,
		MergeSimilarity:      SimilarityCosine,
		ScalingRange:         [2]float64{0, 1},
		MissingValueStrategy: StrategyMean,
		IDField:              "id",
		MaxIterations:        100,
		Seed:                 42,
	}
}

// Validate checks the tuning for invalid values.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (t Tuning) Validate() error {
	if t.Eps <= 0 {
		return fmt.Errorf("%w: eps must be positive, got %f", ErrInvalidTuning, t.Eps)
	}
	if t.MinPts < 1 {
		return fmt.Errorf("%w: min_pts must be positive, got %d", ErrInvalidTuning, t.MinPts)
	}
	if t.K < 1 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidTuning, t.K)
	}
	if t.MinClusterSize < 1 {
		return fmt.Errorf("%w: min_cluster_size must be positive, got %d", ErrInvalidTuning, t.MinClusterSize)
	}
	if t.SimilarityThreshold < -1 || t.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in [-1, 1], got %f", ErrInvalidTuning, t.SimilarityThreshold)
	}
	if !t.MergeSimilarity.Valid() {
		return fmt.Errorf("%w: unknown merge_similarity %q", ErrInvalidTuning, t.MergeSimilarity)
	}
	if t.ScalingRange[0] >= t.ScalingRange[1] {
		return fmt.Errorf("%w: scaling_range lower bound must be below upper bound, got %v", ErrInvalidTuning, t.ScalingRange)
	}
	if !t.MissingValueStrategy.Valid() {
		return fmt.Errorf("%w: unknown missing_value_strategy %q", ErrInvalidTuning, t.MissingValueStrategy)
	}
	if t.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalidTuning, t.MaxIterations)
	}
	for field, w := range t.WeightedFields {
		if w < 0 {
			return fmt.Errorf("%w: weight for field %q must be non-negative, got %f", ErrInvalidTuning, field, w)
		}
	}
	return nil
}

// Clone returns a deep copy of the tuning.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (t Tuning) Clone() Tuning {
	clone := t
	clone.WeightedFields = maps.Clone(t.WeightedFields)
	if clone.WeightedFields == nil {
		clone.WeightedFields = map[string]float64{}
	}
	return clone
}

// Weight returns the multiplier for field, 1 when none is configured.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (t Tuning) Weight(field string) float64 {
	if w, ok := t.WeightedFields[field]; ok {
		return w
	}
	return 1
}

// TuningOverride carries per-endpoint overrides. Nil fields keep the base value.
type TuningOverride struct {
	Eps                  *float64              `json:"eps,omitempty" koanf:"eps"`
	MinPts               *int                  `json:"min_pts,omitempty" koanf:"min_pts"`
	K                    *int                  `json:"k,omitempty" koanf:"k"`
	MinClusterSize       *int                  `json:"min_cluster_size,omitempty" koanf:"min_cluster_size"`
	WeightedFields       map[string]float64    `json:"weighted_fields,omitempty" koanf:"weighted_fields"`
	SimilarityThreshold  *float64              `json:"similarity_threshold,omitempty" koanf:"similarity_threshold"`
	MergeSimilarity      *SimilarityMetric     `json:"merge_similarity,omitempty" koanf:"merge_similarity"`
	ScalingRange         *[2]float64           `json:"scaling_range,omitempty" koanf:"scaling_range"`
	MissingValueStrategy *MissingValueStrategy `json:"missing_value_strategy,omitempty" koanf:"missing_value_strategy"`
	IDField              *string               `json:"id_field,omitempty" koanf:"id_field"`
	MaxIterations        *int                  `json:"max_iterations,omitempty" koanf:"max_iterations"`
	Seed                 *int64                `json:"seed,omitempty" koanf:"seed"`
}

// Merge returns a copy of t with every non-nil override field applied.
// Weighted fields are merged key by key, the override winning.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (t Tuning) Merge(o TuningOverride) Tuning {
	out := t.Clone()

	if o.Eps != nil {
		out.Eps = *o.Eps
	}
	if o.MinPts != nil {
		out.MinPts = *o.MinPts
	}
	if o.K != nil {
		out.K = *o.K
	}
	if o.MinClusterSize != nil {
		out.MinClusterSize = *o.MinClusterSize
	}
	maps.Copy(out.WeightedFields, o.WeightedFields)
	if o.SimilarityThreshold != nil {
		out.SimilarityThreshold = *o.SimilarityThreshold
	}
	if o.MergeSimilarity != nil {
		out.MergeSimilarity = *o.MergeSimilarity
	}
	if o.ScalingRange != nil {
		out.ScalingRange = *o.ScalingRange
	}
	if o.MissingValueStrategy != nil {
		out.MissingValueStrategy = *o.MissingValueStrategy
	}
	if o.IDField != nil {
		out.IDField = *o.IDField
	}
	if o.MaxIterations != nil {
		out.MaxIterations = *o.MaxIterations
	}
	if o.Seed != nil {
		out.Seed = *o.Seed
	}

	return out
}

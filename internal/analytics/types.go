// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package analytics

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"
)

// Row is one tabular record: field name to raw value.
type Row map[string]any

// Matrix is a batch of feature vectors. Every row has the same length.
type Matrix [][]float64

// Dimensions returns the row length of the matrix, 0 when empty.
func (m Matrix) Dimensions() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// ModelKind identifies which trainer owns a model.
type ModelKind string

const (
	// KindAnomaly is the DBSCAN density anomaly model.
	KindAnomaly ModelKind = "anomaly"

	// KindRecommendation is the k-means centroid clustering model.
	KindRecommendation ModelKind = "recommendation"
)

// String returns the kind name.
func (k ModelKind) String() string {
	return string(k)
}

// ParseModelKind maps a route or config name to a ModelKind.
// "clustering" is accepted as an alias for the recommendation model.
func ParseModelKind(s string) (ModelKind, error) {
	switch s {
	case "anomaly", "anomalies":
		return KindAnomaly, nil
	case "recommendation", "recommendations", "clustering":
		return KindRecommendation, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownModelKind, s)
	}
}

// FieldKind is decided once, when a field processor is fit.
type FieldKind string

const (
	// FieldNumeric fields are imputed and min-max scaled to one dimension.
	FieldNumeric FieldKind = "numeric"

	// FieldCategorical fields are one-hot encoded over a frozen vocabulary.
	FieldCategorical FieldKind = "categorical"
)

// NumericParams are the frozen parameters of a numeric field.
type NumericParams struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Fill float64 `json:"fill"`
}

// FieldProcessor is the frozen transform of one field.
// Once fit, its parameters and vocabulary never change.
type FieldProcessor struct {
	Field      string               `json:"field"`
	Kind       FieldKind            `json:"kind"`
	Numeric    *NumericParams       `json:"numeric,omitempty"`
	Vocabulary []string             `json:"vocabulary,omitempty"`
	Weight     float64              `json:"weight"`
	Range      [2]float64           `json:"range"`
	Strategy   MissingValueStrategy `json:"strategy,omitempty"`
}

// Width is the number of output dimensions of the processor.
func (p *FieldProcessor) Width() int {
	if p.Kind == FieldCategorical {
		return len(p.Vocabulary)
	}
	return 1
}

// Encode transforms a raw value into the processor's sub-vector.
// Missing or non-numeric values in a numeric field take the frozen fill value.
// Unseen categorical values encode to all zeros.
func (p *FieldProcessor) Encode(v any) []float64 {
	out := make([]float64, p.Width())

	switch p.Kind {
	case FieldNumeric:
		x, ok := ToFloat(v)
		if !ok && p.Numeric != nil {
			x = p.Numeric.Fill
		}
		out[0] = p.Scale(x) * p.Weight
	case FieldCategorical:
		if v == nil {
			return out
		}
		if i, ok := p.index(CategoryString(v)); ok {
			out[i] = p.Weight
		}
	}

	return out
}

// Scale maps x from [Min, Max] into the processor's range.
// A constant column maps to the lower bound. Values outside [Min, Max] are not clipped.
func (p *FieldProcessor) Scale(x float64) float64 {
	lo, hi := p.Range[0], p.Range[1]
	if p.Numeric == nil {
		return lo
	}
	span := p.Numeric.Max - p.Numeric.Min
	if span == 0 {
		return lo
	}
	return lo + (x-p.Numeric.Min)/span*(hi-lo)
}

func (p *FieldProcessor) index(s string) (int, bool) {
	i := sort.SearchStrings(p.Vocabulary, s)
	if i < len(p.Vocabulary) && p.Vocabulary[i] == s {
		return i, true
	}
	return 0, false
}

// Clone returns a deep copy of the processor.
func (p *FieldProcessor) Clone() FieldProcessor {
	c := *p
	if p.Numeric != nil {
		n := *p.Numeric
		c.Numeric = &n
	}
	c.Vocabulary = slices.Clone(p.Vocabulary)
	return c
}

// Dimensions returns the total width of an ordered processor list.
func Dimensions(processors []FieldProcessor) int {
	d := 0
	for i := range processors {
		d += processors[i].Width()
	}
	return d
}

// Fields returns the field names of the processors, in order.
func Fields(processors []FieldProcessor) []string {
	out := make([]string, len(processors))
	for i := range processors {
		out[i] = processors[i].Field
	}
	return out
}

// Batch is the output of feature building and the input of a trainer.
// Rows[i] is the record that produced Matrix[i].
type Batch struct {
	Matrix     Matrix
	Rows       []Row
	Processors []FieldProcessor
}

// Cluster is one k-means cluster of the recommendation model.
// Size equals len(MemberRowIDs) equals len(Similarities).
type Cluster struct {
	ID           int       `json:"id"`
	MemberRowIDs []string  `json:"member_row_ids"`
	Centroid     []float64 `json:"centroid"`
	Size         int       `json:"size"`
	Similarities []float64 `json:"similarities"`
}

// DensityCluster is one DBSCAN cluster of the anomaly model.
// Indices point into the model's ProcessedData.
type DensityCluster struct {
	ID       int       `json:"id"`
	Indices  []int     `json:"indices"`
	Centroid []float64 `json:"centroid"`
	Size     int       `json:"size"`
}

// AnomalyPoint is a point that no density cluster claimed.
type AnomalyPoint struct {
	Index    int       `json:"index"`
	Row      Row       `json:"row"`
	Features []float64 `json:"features"`
}

// Stats summarises a model. Fields that do not apply to a kind stay zero.
type Stats struct {
	TotalPoints       int     `json:"total_points"`
	Dimensions        int     `json:"dimensions"`
	ClusterCount      int     `json:"cluster_count"`
	ClusterSizes      []int   `json:"cluster_sizes"`
	AnomalyCount      int     `json:"anomaly_count"`
	AnomalyPercentage float64 `json:"anomaly_percentage"`
	AverageSimilarity float64 `json:"average_similarity"`
	AdjustedK         int     `json:"adjusted_k"`
}

// MergeOutcome counts what an incremental merge did with the new batch.
type MergeOutcome struct {
	// Merged new clusters folded into an existing cluster.
	Merged int `json:"merged"`

	// Appended new clusters added to the model.
	Appended int `json:"appended"`

	// AnomaliesAdded new anomalies recorded.
	AnomaliesAdded int `json:"anomalies_added"`

	// Dropped new density clusters too close to an existing one.
	Dropped int `json:"dropped"`

	// Duplicates new anomalies within eps of a recorded anomaly.
	Duplicates int `json:"duplicates"`
}

// Model is a trained analytics model. It is a plain JSON-compatible value:
// training and merging always return a new Model.
type Model struct {
	Key     string    `json:"key"`
	Kind    ModelKind `json:"kind"`
	Version int       `json:"version"`
	RunID   string    `json:"run_id,omitempty"`

	// Recommendation model
	Clusters []Cluster `json:"clusters,omitempty"`

	// Anomaly model
	DensityClusters []DensityCluster `json:"density_clusters,omitempty"`
	Anomalies       []AnomalyPoint   `json:"anomalies,omitempty"`
	ProcessedData   [][]float64      `json:"processed_data,omitempty"`

	Processors  []FieldProcessor `json:"processors"`
	Tuning      Tuning           `json:"tuning"`
	Stats       Stats            `json:"stats"`
	LastUpdated time.Time        `json:"last_updated"`

	// LastMerge is set by the most recent incremental merge.
	LastMerge *MergeOutcome `json:"last_merge,omitempty"`

	// SourceOffset counts the source rows already consumed by this model.
	SourceOffset int64 `json:"source_offset,omitempty"`
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}

	c := *m
	c.Tuning = m.Tuning.Clone()
	c.Stats.ClusterSizes = slices.Clone(m.Stats.ClusterSizes)
	if m.LastMerge != nil {
		lm := *m.LastMerge
		c.LastMerge = &lm
	}

	if m.Clusters != nil {
		c.Clusters = make([]Cluster, len(m.Clusters))
		for i, cl := range m.Clusters {
			c.Clusters[i] = Cluster{
				ID:           cl.ID,
				MemberRowIDs: slices.Clone(cl.MemberRowIDs),
				Centroid:     slices.Clone(cl.Centroid),
				Size:         cl.Size,
				Similarities: slices.Clone(cl.Similarities),
			}
		}
	}

	if m.DensityClusters != nil {
		c.DensityClusters = make([]DensityCluster, len(m.DensityClusters))
		for i, dc := range m.DensityClusters {
			c.DensityClusters[i] = DensityCluster{
				ID:       dc.ID,
				Indices:  slices.Clone(dc.Indices),
				Centroid: slices.Clone(dc.Centroid),
				Size:     dc.Size,
			}
		}
	}

	if m.Anomalies != nil {
		c.Anomalies = make([]AnomalyPoint, len(m.Anomalies))
		for i, a := range m.Anomalies {
			c.Anomalies[i] = AnomalyPoint{
				Index:    a.Index,
				Row:      maps.Clone(a.Row),
				Features: slices.Clone(a.Features),
			}
		}
	}

	if m.ProcessedData != nil {
		c.ProcessedData = make([][]float64, len(m.ProcessedData))
		for i, row := range m.ProcessedData {
			c.ProcessedData[i] = slices.Clone(row)
		}
	}

	if m.Processors != nil {
		c.Processors = make([]FieldProcessor, len(m.Processors))
		for i := range m.Processors {
			c.Processors[i] = m.Processors[i].Clone()
		}
	}

	return &c
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package features

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/tomtom215/rowlens/internal/analytics"
)

// Reasons a field is skipped during fitting. Skips are not fatal.
var (
	ErrNoSample        = errors.New("field has no non-null value")
	ErrUnsupportedType = errors.New("field type is neither numeric nor categorical")
)

// Fit builds the frozen processor for field from the rows of the first batch.
// The kind is decided by the field's first non-null value.
//
//nolint:gocritic // hugeParam: tuning passed by value for immutability
func Fit(field string, rows []analytics.Row, tuning analytics.Tuning) (analytics.FieldProcessor, error) {
	sample, ok := firstSample(field, rows)
	if !ok {
		return analytics.FieldProcessor{}, ErrNoSample
	}

	p := analytics.FieldProcessor{
		Field:  field,
		Weight: tuning.Weight(field),
		Range:  tuning.ScalingRange,
	}

	switch {
	case analytics.IsNumeric(sample):
		p.Kind = analytics.FieldNumeric
		p.Strategy = tuning.MissingValueStrategy
		p.Numeric = fitNumeric(field, rows, tuning.MissingValueStrategy)
	case analytics.IsCategorical(sample):
		p.Kind = analytics.FieldCategorical
		p.Vocabulary = fitVocabulary(field, rows)
	default:
		return analytics.FieldProcessor{}, fmt.Errorf("%w: %T", ErrUnsupportedType, sample)
	}

	return p, nil
}

func firstSample(field string, rows []analytics.Row) (any, bool) {
	for _, row := range rows {
		if v, ok := row[field]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// fitNumeric imputes the column and records its min, max and fill value.
// The fill value participates in min and max because filled cells are
// scaled like any other value.
func fitNumeric(field string, rows []analytics.Row, strategy analytics.MissingValueStrategy) *analytics.NumericParams {
	present := make([]float64, 0, len(rows))
	missing := 0
	for _, row := range rows {
		if x, ok := analytics.ToFloat(row[field]); ok {
			present = append(present, x)
		} else {
			missing++
		}
	}

	fill := fillValue(present, strategy)

	column := present
	if missing > 0 && strategy != analytics.StrategyRemove {
		column = append(slices.Clone(present), fill)
	}
	if len(column) == 0 {
		return &analytics.NumericParams{Fill: fill}
	}

	return &analytics.NumericParams{
		Min:  floats.Min(column),
		Max:  floats.Max(column),
		Fill: fill,
	}
}

// fitVocabulary collects the sorted distinct string forms of the column.
func fitVocabulary(field string, rows []analytics.Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		seen[analytics.CategoryString(v)] = struct{}{}
	}

	vocab := make([]string, 0, len(seen))
	for s := range seen {
		vocab = append(vocab, s)
	}
	slices.Sort(vocab)
	return vocab
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package features converts raw rows into fixed-dimension feature vectors.
//
// Numeric fields are imputed and min-max scaled to one dimension; categorical
// fields are one-hot encoded over a sorted vocabulary. Processors are fit on
// the first batch of a model and then frozen, so every later batch encodes
// into exactly the same columns.
package features

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
)

// Builder implements analytics.MatrixBuilder.
type Builder struct {
	logger zerolog.Logger
}

// NewBuilder creates a feature builder.
//
//nolint:gocritic // logger passed by value is the zerolog convention
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{
		logger: logger.With().Str("component", "features").Logger(),
	}
}

var _ analytics.MatrixBuilder = (*Builder)(nil)

// Build encodes rows into a feature batch.
//
// When existing is empty, a processor is fit for every usable field (fields,
// or every attribute in rows except the ID field when fields is empty).
// When existing is set, those processors are reused as-is and fields is ignored.
//
//nolint:gocritic // hugeParam: tuning passed by value for immutability
func (b *Builder) Build(ctx context.Context, rows []analytics.Row, fields []string, tuning analytics.Tuning, existing []analytics.FieldProcessor) (analytics.Batch, error) {
	if len(rows) == 0 {
		return analytics.Batch{}, analytics.ErrEmptyInput
	}

	var processors []analytics.FieldProcessor
	if len(existing) > 0 {
		processors = make([]analytics.FieldProcessor, len(existing))
		for i := range existing {
			processors[i] = existing[i].Clone()
		}
	} else {
		if len(fields) == 0 {
			fields = DiscoverFields(rows, tuning.IDField)
		}
		processors = b.fit(rows, fields, tuning)
	}

	if len(processors) == 0 {
		return analytics.Batch{}, analytics.ErrNoValidFields
	}

	if err := ctx.Err(); err != nil {
		return analytics.Batch{}, err
	}

	kept := retainedRows(rows, processors)
	if dropped := len(rows) - len(kept); dropped > 0 {
		b.logger.Debug().
			Int("dropped", dropped).
			Msg("removed records with missing numeric values")
	}

	matrix, err := Assemble(kept, processors)
	if err != nil {
		return analytics.Batch{}, err
	}

	return analytics.Batch{
		Matrix:     matrix,
		Rows:       kept,
		Processors: processors,
	}, nil
}

//nolint:gocritic // hugeParam: tuning passed by value for immutability
func (b *Builder) fit(rows []analytics.Row, fields []string, tuning analytics.Tuning) []analytics.FieldProcessor {
	processors := make([]analytics.FieldProcessor, 0, len(fields))
	for _, field := range fields {
		p, err := Fit(field, rows, tuning)
		if err != nil {
			b.logger.Warn().
				Str("field", field).
				Err(err).
				Msg("skipping field")
			continue
		}
		processors = append(processors, p)
	}
	return processors
}

// DiscoverFields returns the sorted union of row attributes, excluding idField.
func DiscoverFields(rows []analytics.Row, idField string) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			if k != idField {
				seen[k] = struct{}{}
			}
		}
	}

	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	return fields
}

// retainedRows drops records that have a missing value in any numeric field
// whose strategy is remove. Other rows pass through in order.
func retainedRows(rows []analytics.Row, processors []analytics.FieldProcessor) []analytics.Row {
	var removeFields []string
	for i := range processors {
		if processors[i].Kind == analytics.FieldNumeric && processors[i].Strategy == analytics.StrategyRemove {
			removeFields = append(removeFields, processors[i].Field)
		}
	}
	if len(removeFields) == 0 {
		return rows
	}

	kept := make([]analytics.Row, 0, len(rows))
	for _, row := range rows {
		complete := true
		for _, f := range removeFields {
			if _, ok := analytics.ToFloat(row[f]); !ok {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, row)
		}
	}
	return kept
}

// Assemble concatenates each processor's output in processor order.
// Every row is exactly analytics.Dimensions(processors) long.
func Assemble(rows []analytics.Row, processors []analytics.FieldProcessor) (analytics.Matrix, error) {
	d := analytics.Dimensions(processors)
	matrix := make(analytics.Matrix, len(rows))

	for i, row := range rows {
		vec := make([]float64, 0, d)
		for j := range processors {
			vec = append(vec, processors[j].Encode(row[processors[j].Field])...)
		}
		if len(vec) < d {
			vec = append(vec, make([]float64, d-len(vec))...)
		}
		if len(vec) != d {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, want %d",
				analytics.ErrInconsistentDimension, i, len(vec), d)
		}
		matrix[i] = vec
	}

	return matrix, nil
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package source reads table rows for scheduled training.
//
// A RowSource pages through a table in a stable order so that a model can
// resume from the number of rows it has already consumed. DuckDBSource reads
// from a DuckDB database file (which can itself attach Parquet, CSV or other
// databases); BreakerSource guards any RowSource with a circuit breaker.
package source

import (
	"context"
	"errors"

	"github.com/tomtom215/rowlens/internal/analytics"
)

// ErrUnknownTable is returned when the table does not exist in the source.
var ErrUnknownTable = errors.New("unknown table")

// Query selects one page of a table.
type Query struct {
	Table string

	// Fields to read; empty reads every column.
	Fields []string

	// OrderBy is the column that gives pages a stable order.
	OrderBy string

	Offset int64
	Limit  int
}

// RowSource reads pages of rows.
type RowSource interface {
	// Columns lists the columns of table in declaration order.
	Columns(ctx context.Context, table string) ([]string, error)

	// Fetch returns at most q.Limit rows starting at q.Offset. Fewer rows
	// than q.Limit means the table is exhausted.
	Fetch(ctx context.Context, q Query) ([]analytics.Row, error)

	Close() error
}

// Each calls fn for successive pages of q.Limit rows, starting at q.Offset,
// until the table is exhausted, maxPages pages were read (0 means no limit)
// or fn returns an error. It returns the number of rows handed to fn.
func Each(ctx context.Context, src RowSource, q Query, maxPages int, fn func(rows []analytics.Row) error) (int64, error) {
	var consumed int64
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return consumed, err
		}

		rows, err := src.Fetch(ctx, q)
		if err != nil {
			return consumed, err
		}
		if len(rows) == 0 {
			return consumed, nil
		}
		if err := fn(rows); err != nil {
			return consumed, err
		}

		consumed += int64(len(rows))
		q.Offset += int64(len(rows))
		if len(rows) < q.Limit {
			return consumed, nil
		}
	}
	return consumed, nil
}

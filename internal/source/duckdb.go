// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package source

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/logging"
	"github.com/tomtom215/rowlens/internal/metrics"
)

// insertionOrder is DuckDB's implicit row identifier.
const insertionOrder = "rowid"

// DuckDBSource reads rows from a DuckDB database.
type DuckDBSource struct {
	conn    *sql.DB
	timeout time.Duration
	owned   bool
	logger  zerolog.Logger
}

// OpenDuckDB opens the database at dsn read-only. An empty dsn or ":memory:"
// opens an in-memory database, which is only useful in tests.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func OpenDuckDB(dsn string, timeout time.Duration, logger zerolog.Logger) (*DuckDBSource, error) {
	connStr := dsn
	if dsn != "" && dsn != ":memory:" && !strings.Contains(dsn, "access_mode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		connStr = dsn + sep + "access_mode=read_only"
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to connect to source database %s: %w", logging.RedactDSN(dsn), err)
	}

	src := NewDuckDBSource(conn, timeout, logger)
	src.owned = true
	src.logger.Info().Str("dsn", logging.RedactDSN(dsn)).Msg("Source database opened")
	return src, nil
}

// NewDuckDBSource reads from an open connection. Close does not close conn.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewDuckDBSource(conn *sql.DB, timeout time.Duration, logger zerolog.Logger) *DuckDBSource {
	return &DuckDBSource{
		conn:    conn,
		timeout: timeout,
		logger:  logger.With().Str("source", "duckdb").Logger(),
	}
}

// Columns lists the columns of table in declaration order.
func (s *DuckDBSource) Columns(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position`,
		table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer closeQuietly(rows)

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return cols, nil
}

// Fetch reads one page of q.Table ordered by q.OrderBy, or by insertion
// order when q.OrderBy is empty.
func (s *DuckDBSource) Fetch(ctx context.Context, q Query) ([]analytics.Row, error) {
	start := time.Now()
	rows, err := s.fetch(ctx, q)
	metrics.RecordSourceQuery(q.Table, len(rows), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("table", q.Table).
		Int64("offset", q.Offset).
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Fetched source rows")
	return rows, nil
}

func (s *DuckDBSource) fetch(ctx context.Context, q Query) ([]analytics.Row, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("invalid page size %d", q.Limit)
	}

	fields := q.Fields
	if len(fields) == 0 {
		cols, err := s.Columns(ctx, q.Table)
		if err != nil {
			return nil, err
		}
		fields = cols
	}

	orderBy := insertionOrder
	if q.OrderBy != "" {
		orderBy = quoteIdent(q.OrderBy)
	}

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoteIdent(f)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT ? OFFSET ?",
		strings.Join(quoted, ", "), quoteIdent(q.Table), orderBy)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, query, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, err)
	}
	defer closeQuietly(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	out := make([]analytics.Row, 0, q.Limit)
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", q.Table, err)
		}
		row := make(analytics.Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", q.Table, err)
	}
	return out, nil
}

// Close closes the connection if the source opened it.
func (s *DuckDBSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.conn.Close()
}

func (s *DuckDBSource) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// normalize maps driver values onto the value types feature building
// understands: float64, int64, bool, string or nil.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case time.Time:
		return float64(x.Unix())
	case float32:
		return finite(float64(x))
	case float64:
		return finite(x)
	case *big.Int:
		if x == nil {
			return nil
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return finite(f)
	case interface{ Float64() float64 }:
		return finite(x.Float64())
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type closer interface {
	Close() error
}

func closeQuietly(c closer) {
	_ = c.Close() //nolint:errcheck // best-effort cleanup
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package source

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
)

func newTestSource(t *testing.T) *DuckDBSource {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { closeQuietly(conn) })

	stmts := []string{
		`CREATE TABLE orders (id INTEGER, amount DECIMAL(10,2), region VARCHAR, paid BOOLEAN, placed_at TIMESTAMP, score DOUBLE)`,
		`INSERT INTO orders VALUES
			(1, 10.50, 'north', true,  TIMESTAMP '2026-01-01 00:00:00', 0.5),
			(2, 20.00, 'south', false, TIMESTAMP '2026-01-02 00:00:00', 'nan'::DOUBLE),
			(3, NULL,  NULL,    true,  NULL, 1.5),
			(4, 40.25, 'north', false, TIMESTAMP '2026-01-04 00:00:00', 2.5),
			(5, 50.00, 'east',  true,  TIMESTAMP '2026-01-05 00:00:00', 3.5)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("Exec(%q) error = %v", stmt, err)
		}
	}
	return NewDuckDBSource(conn, 5*time.Second, zerolog.Nop())
}

func TestDuckDBSource_Columns(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	cols, err := src.Columns(ctx, "orders")
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	want := []string{"id", "amount", "region", "paid", "placed_at", "score"}
	if len(cols) != len(want) {
		t.Fatalf("Columns() = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("Columns()[%d] = %q, want %q", i, cols[i], want[i])
		}
	}

	if _, err := src.Columns(ctx, "missing"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Columns(missing) error = %v, want ErrUnknownTable", err)
	}
}

func TestDuckDBSource_FetchPages(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	first, err := src.Fetch(ctx, Query{Table: "orders", Fields: []string{"id", "region"}, Limit: 2})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len(Fetch()) = %d, want 2", len(first))
	}
	if first[0]["id"] != int32(1) || first[1]["id"] != int32(2) {
		t.Errorf("first page ids = %v, %v, want 1, 2", first[0]["id"], first[1]["id"])
	}
	if _, ok := first[0]["amount"]; ok {
		t.Error("unrequested field amount present")
	}

	last, err := src.Fetch(ctx, Query{Table: "orders", Fields: []string{"id"}, Offset: 4, Limit: 2})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(last) != 1 || last[0]["id"] != int32(5) {
		t.Errorf("last page = %v, want id 5 only", last)
	}
}

func TestDuckDBSource_FetchOrderBy(t *testing.T) {
	src := newTestSource(t)

	rows, err := src.Fetch(context.Background(), Query{Table: "orders", Fields: []string{"id"}, OrderBy: "score", Limit: 10})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	// DuckDB sorts NaN after every other value.
	want := []int32{1, 3, 4, 5, 2}
	for i, w := range want {
		if rows[i]["id"] != w {
			t.Errorf("rows[%d].id = %v, want %d", i, rows[i]["id"], w)
		}
	}
}

func TestDuckDBSource_Normalize(t *testing.T) {
	src := newTestSource(t)

	rows, err := src.Fetch(context.Background(), Query{Table: "orders", Limit: 5})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if got, ok := analytics.ToFloat(rows[0]["amount"]); !ok || got != 10.5 {
		t.Errorf("amount = %v (%T), want 10.5", rows[0]["amount"], rows[0]["amount"])
	}
	if rows[0]["region"] != "north" {
		t.Errorf("region = %v, want north", rows[0]["region"])
	}
	if rows[0]["paid"] != true {
		t.Errorf("paid = %v, want true", rows[0]["paid"])
	}
	wantTime := float64(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	if rows[0]["placed_at"] != wantTime {
		t.Errorf("placed_at = %v, want %v", rows[0]["placed_at"], wantTime)
	}
	if rows[1]["score"] != nil {
		t.Errorf("NaN score = %v, want nil", rows[1]["score"])
	}
	for _, f := range []string{"amount", "region", "placed_at"} {
		if rows[2][f] != nil {
			t.Errorf("NULL %s = %v, want nil", f, rows[2][f])
		}
	}
}

func TestDuckDBSource_FetchErrors(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		q       Query
		wantErr error
	}{
		{"zero limit", Query{Table: "orders", Limit: 0}, nil},
		{"unknown table", Query{Table: "missing", Limit: 10}, ErrUnknownTable},
		{"unknown field", Query{Table: "orders", Fields: []string{"nope"}, Limit: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.Fetch(ctx, tt.q)
			if err == nil {
				t.Fatal("Fetch() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEach(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		offset    int64
		maxPages  int
		wantRows  int64
		wantPages int
	}{
		{"all pages", 0, 0, 5, 3},
		{"bounded", 0, 2, 4, 2},
		{"resume", 3, 0, 2, 1},
		{"exhausted", 5, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := 0
			q := Query{Table: "orders", Fields: []string{"id"}, Offset: tt.offset, Limit: 2}
			got, err := Each(ctx, src, q, tt.maxPages, func(rows []analytics.Row) error {
				pages++
				return nil
			})
			if err != nil {
				t.Fatalf("Each() error = %v", err)
			}
			if got != tt.wantRows {
				t.Errorf("Each() rows = %d, want %d", got, tt.wantRows)
			}
			if pages != tt.wantPages {
				t.Errorf("pages = %d, want %d", pages, tt.wantPages)
			}
		})
	}
}

func TestEach_StopsOnCallbackError(t *testing.T) {
	src := newTestSource(t)
	boom := errors.New("boom")

	got, err := Each(context.Background(), src, Query{Table: "orders", Limit: 2}, 0, func([]analytics.Row) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Each() error = %v, want boom", err)
	}
	if got != 0 {
		t.Errorf("Each() rows = %d, want 0", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("quoteIdent() = %s", got)
	}
}

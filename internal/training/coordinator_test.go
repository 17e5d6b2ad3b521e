// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/analytics/anomaly"
	"github.com/tomtom215/rowlens/internal/analytics/cluster"
	"github.com/tomtom215/rowlens/internal/analytics/features"
	"github.com/tomtom215/rowlens/internal/config"
	"github.com/tomtom215/rowlens/internal/metrics"
	"github.com/tomtom215/rowlens/internal/source"
	"github.com/tomtom215/rowlens/internal/store"
)

// sliceSource serves rows from memory in insertion order.
type sliceSource struct {
	mu      sync.Mutex
	columns []string
	rows    []analytics.Row
	fetches int
	err     error
}

func (s *sliceSource) Columns(_ context.Context, table string) ([]string, error) {
	if table != "orders" {
		return nil, source.ErrUnknownTable
	}
	return s.columns, nil
}

func (s *sliceSource) Fetch(_ context.Context, q source.Query) ([]analytics.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	if q.Offset >= int64(len(s.rows)) {
		return nil, nil
	}
	end := min(int(q.Offset)+q.Limit, len(s.rows))
	out := make([]analytics.Row, 0, end-int(q.Offset))
	for _, r := range s.rows[q.Offset:end] {
		row := analytics.Row{}
		for k, v := range r {
			if len(q.Fields) == 0 || contains(q.Fields, k) {
				row[k] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *sliceSource) Close() error { return nil }

func (s *sliceSource) add(rows ...analytics.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func orderRows(from, n int) []analytics.Row {
	rows := make([]analytics.Row, n)
	for i := range rows {
		id := from + i
		region := "eu"
		if id%2 == 0 {
			region = "us"
		}
		rows[i] = analytics.Row{"id": id, "amount": float64(10 * id), "region": region}
	}
	return rows
}

func newTestEngine() *analytics.Engine {
	logger := zerolog.Nop()
	e := analytics.NewEngine(features.NewBuilder(logger), logger)
	e.RegisterTrainer(anomaly.NewDetector(logger))
	e.RegisterTrainer(cluster.NewRecommender(logger))
	return e
}

func newTestConfig(batch, maxBatches int) *config.Config {
	return &config.Config{
		Source:   config.SourceConfig{BatchSize: batch, MaxBatches: maxBatches, QueryTimeout: time.Second},
		Defaults: analytics.DefaultTuning(),
		Endpoints: []config.Endpoint{
			{Table: "orders", Model: "recommendation"},
			{Table: "orders", Model: "anomaly"},
		},
	}
}

func newTestCoordinator(t *testing.T, src source.RowSource, cfg *config.Config) (*Coordinator, store.Store) {
	t.Helper()
	st := store.NewMemoryStore(5)
	t.Cleanup(func() { _ = st.Close() }) //nolint:errcheck // test cleanup
	return NewCoordinator(newTestEngine(), st, src, cfg, zerolog.Nop()), st
}

func TestCoordinator_TrainThenMerge(t *testing.T) {
	cfg := newTestConfig(100, 0)
	c, st := newTestCoordinator(t, nil, cfg)
	ctx := context.Background()
	ep := &cfg.Endpoints[0]

	var completed []Result
	c.SetOnCompleted(func(r Result) { completed = append(completed, r) })

	res, err := c.Train(ctx, ep, orderRows(1, 6))
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if res.Version != 1 || res.Key != "orders/recommendation" || res.Incremental {
		t.Errorf("Train() = %+v, want fresh orders/recommendation v1", res)
	}

	res, err = c.Train(ctx, ep, orderRows(7, 4))
	if err != nil {
		t.Fatalf("Train() merge error = %v", err)
	}
	if res.Version != 2 || res.Previous != 1 {
		t.Errorf("merged version %d -> %d, want 1 -> 2", res.Previous, res.Version)
	}
	if res.Stats.TotalPoints != 10 {
		t.Errorf("TotalPoints = %d, want 10", res.Stats.TotalPoints)
	}
	if res.Outcome == nil {
		t.Error("Outcome = nil for a merge")
	}

	stored, err := st.Get(ctx, ep.Key())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Version != 2 {
		t.Errorf("stored Version = %d, want 2", stored.Version)
	}

	if len(completed) != 2 {
		t.Fatalf("completed callbacks = %d, want 2", len(completed))
	}
	last, ok := c.LastResult(ep.Key())
	if !ok || !last.Incremental || last.Previous != 1 || last.Version != 2 {
		t.Errorf("LastResult() = %+v, want incremental 1 -> 2", last)
	}
}

func TestCoordinator_FailedTrainKeepsModel(t *testing.T) {
	cfg := newTestConfig(100, 0)
	c, st := newTestCoordinator(t, nil, cfg)
	ctx := context.Background()
	ep := &cfg.Endpoints[1]

	if _, err := c.Train(ctx, ep, orderRows(1, 6)); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	_, err := c.Train(ctx, ep, nil)
	if !errors.Is(err, analytics.ErrEmptyInput) {
		t.Fatalf("Train(nil) error = %v, want ErrEmptyInput", err)
	}

	stored, err := st.Get(ctx, ep.Key())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Version != 1 || stored.Stats.TotalPoints != 6 {
		t.Errorf("stored = v%d with %d points, want v1 with 6", stored.Version, stored.Stats.TotalPoints)
	}
}

func TestCoordinator_TrainUnknownKind(t *testing.T) {
	cfg := newTestConfig(100, 0)
	c, _ := newTestCoordinator(t, nil, cfg)

	_, err := c.Train(context.Background(), &config.Endpoint{Table: "orders", Model: "forecast"}, orderRows(1, 3))
	if !errors.Is(err, analytics.ErrUnknownModelKind) {
		t.Errorf("Train() error = %v, want ErrUnknownModelKind", err)
	}
}

func TestCoordinator_SyncResumesFromOffset(t *testing.T) {
	src := &sliceSource{columns: []string{"id", "amount", "region"}, rows: orderRows(1, 7)}
	cfg := newTestConfig(3, 0)
	c, st := newTestCoordinator(t, src, cfg)
	ctx := context.Background()
	ep := &cfg.Endpoints[0]

	res, err := c.Sync(ctx, ep)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	// Pages of 3, 3 and 1; the single-row page is below the minimum cluster
	// size and leaves the model version alone.
	if res.Batches != 3 || res.Rows != 7 || res.Offset != 7 {
		t.Errorf("Sync() = %d batches, %d rows, offset %d; want 3, 7, 7", res.Batches, res.Rows, res.Offset)
	}
	if res.Version != 2 {
		t.Errorf("Sync() Version = %d, want 2", res.Version)
	}

	res, err = c.Sync(ctx, ep)
	if err != nil {
		t.Fatalf("Sync() idle error = %v", err)
	}
	if res.Rows != 0 || res.Version != 2 || res.Offset != 7 {
		t.Errorf("idle Sync() = %+v, want no rows at v2 offset 7", res)
	}

	src.add(orderRows(8, 4)...)
	res, err = c.Sync(ctx, ep)
	if err != nil {
		t.Fatalf("Sync() after insert error = %v", err)
	}
	if res.Rows != 4 || res.Offset != 11 || res.Previous != 2 || res.Version != 3 {
		t.Errorf("Sync() after insert = %+v, want 4 rows, offset 11, v2 -> v3", res)
	}
	if res.Outcome == nil || res.Outcome.Merged+res.Outcome.Appended == 0 {
		t.Errorf("Outcome = %+v, want merged or appended clusters", res.Outcome)
	}

	stored, err := st.Get(ctx, ep.Key())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// Rows 7 and 11 arrived in single-row pages and were consumed unmerged.
	if stored.SourceOffset != 11 || stored.Stats.TotalPoints != 9 {
		t.Errorf("stored offset %d points %d, want 11 and 9", stored.SourceOffset, stored.Stats.TotalPoints)
	}
}

func TestCoordinator_SyncMaxBatches(t *testing.T) {
	src := &sliceSource{columns: []string{"id", "amount", "region"}, rows: orderRows(1, 12)}
	cfg := newTestConfig(3, 2)
	c, _ := newTestCoordinator(t, src, cfg)

	res, err := c.Sync(context.Background(), &cfg.Endpoints[1])
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Batches != 2 || res.Offset != 6 {
		t.Errorf("Sync() = %d batches offset %d, want 2 batches offset 6", res.Batches, res.Offset)
	}
}

func TestCoordinator_SyncAllowRead(t *testing.T) {
	src := &sliceSource{columns: []string{"id", "amount", "region"}, rows: orderRows(1, 6)}
	cfg := newTestConfig(10, 0)
	cfg.Endpoints[0].AllowRead = []string{"amount"}
	c, _ := newTestCoordinator(t, src, cfg)

	res, err := c.Sync(context.Background(), &cfg.Endpoints[0])
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Stats.Dimensions != 1 {
		t.Errorf("Dimensions = %d, want 1 (amount only)", res.Stats.Dimensions)
	}
}

func TestCoordinator_SyncErrors(t *testing.T) {
	cfg := newTestConfig(3, 0)

	t.Run("no source", func(t *testing.T) {
		c, _ := newTestCoordinator(t, nil, cfg)
		if _, err := c.Sync(context.Background(), &cfg.Endpoints[0]); !errors.Is(err, ErrNoSource) {
			t.Errorf("Sync() error = %v, want ErrNoSource", err)
		}
	})

	t.Run("source failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		c, st := newTestCoordinator(t, &sliceSource{err: boom}, cfg)
		if _, err := c.Sync(context.Background(), &cfg.Endpoints[0]); !errors.Is(err, boom) {
			t.Errorf("Sync() error = %v, want %v", err, boom)
		}
		if _, err := st.Get(context.Background(), cfg.Endpoints[0].Key()); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})
}

func TestCoordinator_SyncSkipsRejectedPage(t *testing.T) {
	withoutAmount := func(ids ...int) []analytics.Row {
		rows := make([]analytics.Row, len(ids))
		for i, id := range ids {
			rows[i] = analytics.Row{"id": id, "amount": nil, "region": "eu"}
		}
		return rows
	}

	tests := []struct {
		name        string
		endpoint    int
		batch       int
		rows        []analytics.Row
		errorType   string
		wantVersion int
		wantOffset  int64
		wantPoints  int
		wantBatches int
	}{
		{
			name:     "merge page emptied by remove",
			endpoint: 1,
			batch:    2,
			rows: append(append(orderRows(1, 2), withoutAmount(3, 4)...),
				orderRows(5, 2)...),
			errorType:   "empty_batch",
			wantVersion: 2,
			wantOffset:  6,
			wantPoints:  4,
			wantBatches: 3,
		},
		{
			name:     "first page too small to train",
			endpoint: 0,
			batch:    3,
			rows: append(append(withoutAmount(1, 2), orderRows(3, 1)...),
				orderRows(4, 3)...),
			errorType:   "insufficient_data",
			wantVersion: 1,
			wantOffset:  6,
			wantPoints:  3,
			wantBatches: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceSource{columns: []string{"id", "amount", "region"}, rows: tt.rows}
			cfg := newTestConfig(tt.batch, 0)
			cfg.Defaults.MissingValueStrategy = analytics.StrategyRemove
			c, st := newTestCoordinator(t, src, cfg)
			ctx := context.Background()
			ep := &cfg.Endpoints[tt.endpoint]

			kind, err := ep.Kind()
			if err != nil {
				t.Fatalf("Kind() error = %v", err)
			}
			skippedBefore := testutil.ToFloat64(metrics.TrainingPagesSkipped.WithLabelValues(kind.String(), tt.errorType))

			res, err := c.Sync(ctx, ep)
			if err != nil {
				t.Fatalf("Sync() error = %v", err)
			}
			if res.Skipped != 1 || res.Batches != tt.wantBatches {
				t.Errorf("Sync() skipped %d of %d batches, want 1 of %d", res.Skipped, res.Batches, tt.wantBatches)
			}
			if res.Version != tt.wantVersion || res.Offset != tt.wantOffset {
				t.Errorf("Sync() = v%d offset %d, want v%d offset %d", res.Version, res.Offset, tt.wantVersion, tt.wantOffset)
			}

			skipped := testutil.ToFloat64(metrics.TrainingPagesSkipped.WithLabelValues(kind.String(), tt.errorType)) - skippedBefore
			if skipped != 1 {
				t.Errorf("rowlens_training_pages_skipped_total delta = %v, want 1", skipped)
			}

			stored, err := st.Get(ctx, ep.Key())
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if stored.SourceOffset != tt.wantOffset || stored.Stats.TotalPoints != tt.wantPoints {
				t.Errorf("stored offset %d points %d, want %d and %d",
					stored.SourceOffset, stored.Stats.TotalPoints, tt.wantOffset, tt.wantPoints)
			}

			// The rejected page stays behind the cursor.
			res, err = c.Sync(ctx, ep)
			if err != nil {
				t.Fatalf("second Sync() error = %v", err)
			}
			if res.Rows != 0 || res.Offset != tt.wantOffset {
				t.Errorf("second Sync() = %d rows offset %d, want 0 rows offset %d", res.Rows, res.Offset, tt.wantOffset)
			}
		})
	}
}

func TestCoordinator_SyncAll(t *testing.T) {
	src := &sliceSource{columns: []string{"id", "amount", "region"}, rows: orderRows(1, 6)}
	cfg := newTestConfig(10, 0)
	cfg.Endpoints = append(cfg.Endpoints, config.Endpoint{Table: "missing", Model: "anomaly"})
	c, _ := newTestCoordinator(t, src, cfg)

	// Column lookup is where an unknown table fails.
	cfg.Endpoints[2].AllowRead = []string{"amount"}

	results, err := c.SyncAll(context.Background())
	if !errors.Is(err, source.ErrUnknownTable) {
		t.Errorf("SyncAll() error = %v, want ErrUnknownTable", err)
	}
	if len(results) != 2 {
		t.Errorf("SyncAll() results = %d, want 2", len(results))
	}
}

func TestCoordinator_Reset(t *testing.T) {
	cfg := newTestConfig(100, 0)
	c, st := newTestCoordinator(t, nil, cfg)
	ctx := context.Background()
	ep := &cfg.Endpoints[0]

	if _, err := c.Train(ctx, ep, orderRows(1, 6)); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := c.Reset(ctx, ep); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := st.Get(ctx, ep.Key()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after Reset error = %v, want ErrNotFound", err)
	}
	if _, ok := c.LastResult(ep.Key()); ok {
		t.Error("LastResult() still set after Reset")
	}

	res, err := c.Train(ctx, ep, orderRows(1, 6))
	if err != nil {
		t.Fatalf("Train() after Reset error = %v", err)
	}
	if res.Version != 1 {
		t.Errorf("Version after Reset = %d, want 1", res.Version)
	}
}

// bumpTrainer returns existing with the version bumped. It sleeps so that
// unserialised callers would read the same version.
type bumpTrainer struct{}

//nolint:gocritic // hugeParam: matches Trainer
func (bumpTrainer) Train(_ context.Context, req analytics.Request) (*analytics.Model, error) {
	time.Sleep(time.Millisecond)
	if req.Existing == nil {
		return &analytics.Model{Key: req.Key, Kind: req.Kind, Version: 1}, nil
	}
	m := req.Existing.Clone()
	m.Version++
	return m, nil
}

func TestCoordinator_SerialisesPerKey(t *testing.T) {
	cfg := newTestConfig(100, 0)
	st := store.NewMemoryStore(1)
	c := NewCoordinator(bumpTrainer{}, st, nil, cfg, zerolog.Nop())
	ctx := context.Background()
	ep := &cfg.Endpoints[0]

	const runs = 20
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Train(ctx, ep, orderRows(1, 1)); err != nil {
				errs <- fmt.Errorf("Train() error = %w", err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	m, err := st.Get(ctx, ep.Key())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Version != runs {
		t.Errorf("Version = %d, want %d", m.Version, runs)
	}
}

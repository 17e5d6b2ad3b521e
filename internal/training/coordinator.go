// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package training runs the load, train or merge, and persist cycle for a
// model key.
//
// Every run for a key holds that key's lock from the store load to the
// store write, so two concurrent runs cannot both merge into the same
// version. A failed run leaves the persisted model untouched.
package training

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/config"
	"github.com/tomtom215/rowlens/internal/logging"
	"github.com/tomtom215/rowlens/internal/metrics"
	"github.com/tomtom215/rowlens/internal/source"
	"github.com/tomtom215/rowlens/internal/store"
)

// ErrNoSource is returned by scheduled runs when no row source is configured.
var ErrNoSource = errors.New("no row source configured")

// Trainer is the engine operation the coordinator drives.
type Trainer interface {
	Train(ctx context.Context, req analytics.Request) (*analytics.Model, error)
}

// Result summarises one completed run.
type Result struct {
	Key         string                  `json:"key"`
	Kind        analytics.ModelKind     `json:"kind"`
	Version     int                     `json:"version"`
	Previous    int                     `json:"previous_version"`
	Incremental bool                    `json:"incremental"`
	Rows        int64                   `json:"rows"`
	Batches     int                     `json:"batches"`
	Skipped     int                     `json:"skipped_pages,omitempty"`
	Offset      int64                   `json:"source_offset"`
	Outcome     *analytics.MergeOutcome `json:"merge,omitempty"`
	Stats       analytics.Stats         `json:"stats"`
	Duration    time.Duration           `json:"duration_ns"`
	Finished    time.Time               `json:"finished_at"`
}

// Coordinator serialises training per model key.
type Coordinator struct {
	trainer Trainer
	store   store.Store
	source  source.RowSource
	cfg     *config.Config
	locks   *store.KeyLocker
	logger  zerolog.Logger

	mu          sync.RWMutex
	last        map[string]Result
	onCompleted func(Result)
}

// NewCoordinator creates a coordinator. src may be nil, in which case only
// request-driven training is available.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewCoordinator(trainer Trainer, st store.Store, src source.RowSource, cfg *config.Config, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		trainer: trainer,
		store:   st,
		source:  src,
		cfg:     cfg,
		locks:   store.NewKeyLocker(),
		logger:  logger.With().Str("component", "training").Logger(),
		last:    make(map[string]Result),
	}
}

// SetOnCompleted sets a callback invoked after every successful run.
func (c *Coordinator) SetOnCompleted(fn func(Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCompleted = fn
}

// HasSource reports whether scheduled runs can read rows.
func (c *Coordinator) HasSource() bool {
	return c.source != nil
}

// LastResult returns the most recent successful run of key.
func (c *Coordinator) LastResult(key string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.last[key]
	return r, ok
}

// Train trains ep's model from rows, or merges rows into the stored model,
// and persists the result.
func (c *Coordinator) Train(ctx context.Context, ep *config.Endpoint, rows []analytics.Row) (Result, error) {
	kind, err := ep.Kind()
	if err != nil {
		return Result{}, err
	}
	key := ep.Key()
	ctx = c.runContext(ctx, key)
	start := time.Now()

	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	existing, err := c.load(ctx, key)
	if err != nil {
		return Result{}, err
	}

	model, err := c.step(ctx, ep, kind, existing, rows)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		model.SourceOffset = existing.SourceOffset
	}
	if err := c.save(ctx, model); err != nil {
		return Result{}, err
	}

	res := resultOf(model, existing, int64(len(rows)), 1, time.Since(start))
	c.complete(ctx, res)
	return res, nil
}

// Sync reads the rows of ep's table that the stored model has not consumed
// yet, in pages of the configured batch size, and merges each page. The
// model is persisted after every page, so an interrupted run resumes from
// the last persisted page.
func (c *Coordinator) Sync(ctx context.Context, ep *config.Endpoint) (Result, error) {
	if c.source == nil {
		return Result{}, ErrNoSource
	}
	kind, err := ep.Kind()
	if err != nil {
		return Result{}, err
	}
	key := ep.Key()
	ctx = c.runContext(ctx, key)
	start := time.Now()

	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	existing, err := c.load(ctx, key)
	if err != nil {
		return Result{}, err
	}
	first := existing

	fields, err := c.sourceFields(ctx, ep, existing)
	if err != nil {
		return Result{}, err
	}

	var offset int64
	if existing != nil {
		offset = existing.SourceOffset
	}
	q := source.Query{
		Table:   ep.Table,
		Fields:  fields,
		OrderBy: ep.OrderBy,
		Offset:  offset,
		Limit:   c.cfg.Source.BatchSize,
	}

	batches, skipped := 0, 0
	var outcome analytics.MergeOutcome
	rows, err := source.Each(ctx, c.source, q, c.cfg.Source.MaxBatches, func(page []analytics.Row) error {
		next := offset + int64(len(page))

		model, err := c.step(ctx, ep, kind, existing, page)
		switch {
		case analytics.IsDataError(err):
			// A rejected page is consumed unmerged.
			skipped++
			metrics.RecordSkippedPage(kind, err)
			logging.Ctx(ctx).Warn().Err(err).
				Int64("offset", offset).
				Int("rows", len(page)).
				Msg("Page rejected; skipping past it")
			if existing == nil {
				offset = next
				batches++
				return nil
			}
			model = existing.Clone()
		case err != nil:
			return err
		}

		model.SourceOffset = next
		if err := c.save(ctx, model); err != nil {
			return err
		}

		if existing != nil && changed(existing, model) {
			addOutcome(&outcome, model.LastMerge)
		}
		offset = next
		existing = model
		batches++
		return nil
	})
	if err != nil {
		if batches > 0 {
			logging.Ctx(ctx).Warn().Err(err).
				Int("batches", batches).
				Int64("offset", offset).
				Msg("Sync stopped early; progress up to the last page is kept")
		}
		return Result{}, err
	}

	if existing == nil {
		logging.Ctx(ctx).Debug().Int("skipped", skipped).Msg("No rows to train on")
		return Result{Key: key, Kind: kind, Rows: rows, Batches: batches, Skipped: skipped}, nil
	}

	res := resultOf(existing, first, rows, batches, time.Since(start))
	res.Skipped = skipped
	if first != nil {
		res.Outcome = &outcome
	}
	c.complete(ctx, res)
	return res, nil
}

// SyncAll syncs every configured endpoint in order. A failing endpoint does
// not stop the others; the errors are joined.
func (c *Coordinator) SyncAll(ctx context.Context) ([]Result, error) {
	var (
		results []Result
		errs    []error
	)
	for i := range c.cfg.Endpoints {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ep := &c.cfg.Endpoints[i]
		res, err := c.Sync(ctx, ep)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ep.Key(), err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Reset deletes the stored model of ep so the next run trains from scratch.
func (c *Coordinator) Reset(ctx context.Context, ep *config.Endpoint) error {
	key := ep.Key()
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	if err := c.store.Delete(ctx, key); err != nil {
		return err
	}
	metrics.DeleteModelGauges(key)

	c.mu.Lock()
	delete(c.last, key)
	c.mu.Unlock()

	logging.Ctx(c.runContext(ctx, key)).Info().Msg("Model reset")
	return nil
}

// step runs the engine once and records its metrics.
func (c *Coordinator) step(ctx context.Context, ep *config.Endpoint, kind analytics.ModelKind, existing *analytics.Model, rows []analytics.Row) (*analytics.Model, error) {
	start := time.Now()
	model, err := c.trainer.Train(ctx, analytics.Request{
		Key:      ep.Key(),
		Kind:     kind,
		Rows:     rows,
		Fields:   ep.AllowRead,
		Tuning:   c.cfg.TuningFor(ep),
		Existing: existing,
	})
	metrics.RecordTraining(kind, existing != nil, len(rows), time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Int("rows", len(rows)).
			Bool("incremental", existing != nil).
			Msg("Training failed; stored model unchanged")
		return nil, err
	}
	if changed(existing, model) {
		metrics.RecordMerge(kind, model.LastMerge)
	}
	return model, nil
}

// changed reports whether model differs from existing. A batch too small to
// merge returns an unchanged copy that still carries the previous outcome.
func changed(existing, model *analytics.Model) bool {
	return existing == nil || !model.LastUpdated.Equal(existing.LastUpdated)
}

func (c *Coordinator) load(ctx context.Context, key string) (*analytics.Model, error) {
	m, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load model: %w", err)
	}
	return m, nil
}

func (c *Coordinator) save(ctx context.Context, m *analytics.Model) error {
	if err := c.store.Put(ctx, m); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	metrics.SetModelGauges(m)
	return nil
}

// sourceFields lists the columns to read: the feature fields plus the ID
// field when the table has one.
func (c *Coordinator) sourceFields(ctx context.Context, ep *config.Endpoint, existing *analytics.Model) ([]string, error) {
	var fields []string
	switch {
	case existing != nil:
		fields = analytics.Fields(existing.Processors)
	case len(ep.AllowRead) > 0:
		fields = slices.Clone(ep.AllowRead)
	default:
		return nil, nil
	}

	cols, err := c.source.Columns(ctx, ep.Table)
	if err != nil {
		return nil, err
	}
	id := c.cfg.TuningFor(ep).IDField
	if id != "" && slices.Contains(cols, id) && !slices.Contains(fields, id) {
		fields = append(fields, id)
	}
	return fields, nil
}

func (c *Coordinator) complete(ctx context.Context, res Result) {
	c.mu.Lock()
	c.last[res.Key] = res
	fn := c.onCompleted
	c.mu.Unlock()

	logging.Ctx(ctx).Info().
		Int("version", res.Version).
		Int("previous_version", res.Previous).
		Int64("rows", res.Rows).
		Int("batches", res.Batches).
		Int64("offset", res.Offset).
		Int("total_points", res.Stats.TotalPoints).
		Dur("duration", res.Duration).
		Msg("Training run completed")

	if fn != nil {
		fn(res)
	}
}

func resultOf(m, previous *analytics.Model, rows int64, batches int, d time.Duration) Result {
	res := Result{
		Key:         m.Key,
		Kind:        m.Kind,
		Version:     m.Version,
		Incremental: previous != nil,
		Rows:        rows,
		Batches:     batches,
		Offset:      m.SourceOffset,
		Stats:       m.Stats,
		Duration:    d,
		Finished:    time.Now().UTC(),
	}
	if previous != nil {
		res.Previous = previous.Version
		if changed(previous, m) {
			res.Outcome = m.LastMerge
		}
	}
	return res
}

func addOutcome(dst, o *analytics.MergeOutcome) {
	if o == nil {
		return
	}
	dst.Merged += o.Merged
	dst.Appended += o.Appended
	dst.AnomaliesAdded += o.AnomaliesAdded
	dst.Dropped += o.Dropped
	dst.Duplicates += o.Duplicates
}

// runContext tags ctx with the coordinator's logger, the model key and a
// fresh correlation ID unless the caller already set one.
func (c *Coordinator) runContext(ctx context.Context, key string) context.Context {
	if logging.CorrelationID(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, "")
	}
	ctx = logging.WithLogger(ctx, c.logger)
	return logging.WithModelKey(ctx, key)
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package analytics

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MatrixBuilder turns raw rows into a feature batch.
// When existing processors are supplied they are reused without refitting.
type MatrixBuilder interface {
	Build(ctx context.Context, rows []Row, fields []string, tuning Tuning, existing []FieldProcessor) (Batch, error)
}

// Trainer trains and incrementally merges one kind of model.
type Trainer interface {
	// Kind returns the model kind this trainer owns.
	Kind() ModelKind

	// Train builds a new model from a single batch.
	Train(ctx context.Context, batch Batch, tuning Tuning) (*Model, error)

	// Merge folds a batch into a copy of existing. It must not mutate existing.
	Merge(ctx context.Context, existing *Model, batch Batch, tuning Tuning) (*Model, error)
}

// Request describes one training call.
type Request struct {
	// Key identifies the model (typically "table/kind").
	Key string

	// Kind selects the trainer.
	Kind ModelKind

	// Rows is the new batch.
	Rows []Row

	// Fields restricts which attributes become features. Empty means every
	// attribute seen in Rows except the ID field. Ignored when Existing is set.
	Fields []string

	// Tuning is the resolved tuning for this call.
	Tuning Tuning

	// Existing is the previously persisted model, nil for a fresh train.
	Existing *Model
}

// Engine orchestrates feature building and the registered trainers.
// It is safe for concurrent use; it holds no model state between calls.
type Engine struct {
	builder MatrixBuilder
	logger  zerolog.Logger

	trainers map[ModelKind]Trainer
	mu       sync.RWMutex
}

// NewEngine creates an engine with no trainers registered.
//
//nolint:gocritic // logger passed by value is the zerolog convention
func NewEngine(builder MatrixBuilder, logger zerolog.Logger) *Engine {
	return &Engine{
		builder:  builder,
		logger:   logger.With().Str("component", "analytics").Logger(),
		trainers: make(map[ModelKind]Trainer),
	}
}

// RegisterTrainer adds a trainer, replacing any trainer of the same kind.
func (e *Engine) RegisterTrainer(t Trainer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trainers[t.Kind()] = t
	e.logger.Info().
		Str("kind", t.Kind().String()).
		Msg("registered trainer")
}

// Kinds returns the registered model kinds.
func (e *Engine) Kinds() []ModelKind {
	e.mu.RLock()
	defer e.mu.RUnlock()

	kinds := make([]ModelKind, 0, len(e.trainers))
	for k := range e.trainers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (e *Engine) trainer(kind ModelKind) (Trainer, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.trainers[kind]
	return t, ok
}

// Train builds features for req.Rows and trains a new model, or merges them
// into req.Existing when it is set. req.Existing is never modified.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) Train(ctx context.Context, req Request) (*Model, error) {
	start := time.Now()

	trainer, ok := e.trainer(req.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelKind, req.Kind)
	}
	if err := req.Tuning.Validate(); err != nil {
		return nil, err
	}
	if req.Existing != nil && req.Existing.Kind != req.Kind {
		return nil, fmt.Errorf("%w: have %q, want %q", ErrKindMismatch, req.Existing.Kind, req.Kind)
	}

	logger := e.logger.With().
		Str("model_key", req.Key).
		Str("kind", req.Kind.String()).
		Bool("incremental", req.Existing != nil).
		Logger()

	var existingProcessors []FieldProcessor
	if req.Existing != nil {
		existingProcessors = req.Existing.Processors
	}

	batch, err := e.builder.Build(ctx, req.Rows, req.Fields, req.Tuning, existingProcessors)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var model *Model
	if req.Existing == nil {
		model, err = trainer.Train(ctx, batch, req.Tuning)
	} else {
		model, err = trainer.Merge(ctx, req.Existing, batch, req.Tuning)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Kind, phase(req.Existing), err)
	}

	model.Key = req.Key
	model.Kind = req.Kind
	switch {
	case req.Existing == nil:
		model.Version = 1
		model.RunID = uuid.NewString()
	case !model.LastUpdated.Equal(req.Existing.LastUpdated):
		model.Version = req.Existing.Version + 1
		model.RunID = uuid.NewString()
	}

	logger.Info().
		Int("rows", len(req.Rows)).
		Int("encoded", len(batch.Matrix)).
		Int("dimensions", batch.Matrix.Dimensions()).
		Int("version", model.Version).
		Int("total_points", model.Stats.TotalPoints).
		Int("clusters", model.Stats.ClusterCount).
		Int("anomalies", model.Stats.AnomalyCount).
		Dur("duration", time.Since(start)).
		Msg("training complete")

	return model, nil
}

func phase(existing *Model) string {
	if existing == nil {
		return "train"
	}
	return "merge"
}

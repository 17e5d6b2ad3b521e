// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/config"
	"github.com/tomtom215/rowlens/internal/store"
	"github.com/tomtom215/rowlens/internal/training"
	"github.com/tomtom215/rowlens/internal/validation"
)

// Trainer is the training surface the handlers drive.
type Trainer interface {
	Train(ctx context.Context, ep *config.Endpoint, rows []analytics.Row) (training.Result, error)
	Sync(ctx context.Context, ep *config.Endpoint) (training.Result, error)
	Reset(ctx context.Context, ep *config.Endpoint) error
	HasSource() bool
	LastResult(key string) (training.Result, bool)
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, endpoint resolution
//   - handlers_health.go: health probes
//   - handlers_models.go: model read, train, sync and delete
type Handler struct {
	cfg         *config.Config
	store       store.Store
	trainer     Trainer
	version     string
	startTime   time.Time
	sourceState func() string
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, st store.Store, trainer Trainer) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		trainer:   trainer,
		version:   "dev",
		startTime: time.Now(),
	}
}

// SetVersion sets the build version reported by the health endpoint.
func (h *Handler) SetVersion(version string) {
	h.version = version
}

// SetSourceState reports the row source circuit breaker state in health
// responses.
func (h *Handler) SetSourceState(fn func() string) {
	h.sourceState = fn
}

// endpoint resolves {table}/{model} to a configured endpoint, writing the
// error response itself when it cannot.
func (h *Handler) endpoint(w http.ResponseWriter, r *http.Request) (*config.Endpoint, bool) {
	table := chi.URLParam(r, "table")
	model := chi.URLParam(r, "model")

	if !validation.IsIdentifier(table) {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "table must be an identifier", nil)
		return nil, false
	}

	ep, ok := h.cfg.Endpoint(table, model)
	if !ok {
		respondErr(w, r, ErrUnknownEndpoint)
		return nil, false
	}

	return &ep, true
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/logging"
	"github.com/tomtom215/rowlens/internal/store"
	"github.com/tomtom215/rowlens/internal/training"
	"github.com/tomtom215/rowlens/internal/validation"
)

// ModelSummary is the ?view=summary form of a model: everything except the
// clusters, anomalies and processed data.
type ModelSummary struct {
	store.Meta
	Processors []analytics.FieldProcessor `json:"processors"`
	Tuning     analytics.Tuning           `json:"tuning"`
	Stats      analytics.Stats            `json:"stats"`
	LastMerge  *analytics.MergeOutcome    `json:"last_merge,omitempty"`
	Offset     int64                      `json:"source_offset"`
}

// EndpointInfo describes one configured endpoint.
type EndpointInfo struct {
	Key       string              `json:"key"`
	Table     string              `json:"table"`
	Kind      analytics.ModelKind `json:"kind"`
	AllowRead []string            `json:"allow_read,omitempty"`
	OrderBy   string              `json:"order_by,omitempty"`
	Tuning    analytics.Tuning    `json:"tuning"`
	LastRun   *training.Result    `json:"last_run,omitempty"`
}

// ListModels returns the metadata of every stored model.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metas, err := h.store.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if metas == nil {
		metas = []store.Meta{}
	}
	respondSuccess(w, r, http.StatusOK, metas, start)
}

// ListEndpoints returns the configured endpoints with their effective
// tuning and last successful run.
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	out := make([]EndpointInfo, 0, len(h.cfg.Endpoints))
	for i := range h.cfg.Endpoints {
		ep := &h.cfg.Endpoints[i]
		kind, err := ep.Kind()
		if err != nil {
			continue
		}
		info := EndpointInfo{
			Key:       ep.Key(),
			Table:     ep.Table,
			Kind:      kind,
			AllowRead: ep.AllowRead,
			OrderBy:   ep.OrderBy,
			Tuning:    h.cfg.TuningFor(ep),
		}
		if res, ok := h.trainer.LastResult(info.Key); ok {
			info.LastRun = &res
		}
		out = append(out, info)
	}
	respondSuccess(w, r, http.StatusOK, out, start)
}

// GetModel returns the stored model, or a retained version of it.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ep, ok := h.endpoint(w, r)
	if !ok {
		return
	}

	q, err := parseModelQuery(r)
	if err != nil {
		respondValidation(w, r, err)
		return
	}

	var model *analytics.Model
	if q.Version > 0 {
		hist, ok := h.store.(store.History)
		if !ok {
			respondErr(w, r, store.ErrNoHistory)
			return
		}
		model, err = hist.GetVersion(r.Context(), ep.Key(), q.Version)
	} else {
		model, err = h.store.Get(r.Context(), ep.Key())
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}

	if q.View == viewSummary {
		respondSuccess(w, r, http.StatusOK, summarize(model), start)
		return
	}
	respondSuccess(w, r, http.StatusOK, model, start)
}

// ModelStats returns the statistics of the stored model.
func (h *Handler) ModelStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ep, ok := h.endpoint(w, r)
	if !ok {
		return
	}

	model, err := h.store.Get(r.Context(), ep.Key())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, model.Stats, start)
}

// ModelVersions lists the retained versions of the model, newest first.
func (h *Handler) ModelVersions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ep, ok := h.endpoint(w, r)
	if !ok {
		return
	}

	hist, ok := h.store.(store.History)
	if !ok {
		respondErr(w, r, store.ErrNoHistory)
		return
	}
	metas, err := hist.Versions(r.Context(), ep.Key())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, metas, start)
}

// TrainModel trains the endpoint's model from the posted rows, or merges
// them into the stored model.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ep, ok := h.endpoint(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeBodyTooLarge, "Request body too large", nil)
			return
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body", err)
		return
	}

	var req TrainRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", err)
		return
	}

	res, err := h.trainer.Train(r.Context(), ep, req.Rows)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("model_key", res.Key).
		Int("version", res.Version).
		Int("rows", len(req.Rows)).
		Msg("Model trained over HTTP")
	respondSuccess(w, r, http.StatusOK, res, start)
}

// SyncModel pulls the rows the model has not consumed yet from the row
// source.
func (h *Handler) SyncModel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ep, ok := h.endpoint(w, r)
	if !ok {
		return
	}

	res, err := h.trainer.Sync(r.Context(), ep)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, res, start)
}

// DeleteModel drops the stored model and its versions.
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ep, ok := h.endpoint(w, r)
	if !ok {
		return
	}

	if err := h.trainer.Reset(r.Context(), ep); err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]string{"deleted": ep.Key()}, start)
}

func summarize(m *analytics.Model) ModelSummary {
	return ModelSummary{
		Meta:       store.MetaOf(m, m.LastUpdated),
		Processors: m.Processors,
		Tuning:     m.Tuning,
		Stats:      m.Stats,
		LastMerge:  m.LastMerge,
		Offset:     m.SourceOffset,
	}
}

func respondValidation(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		respondJSON(w, r, http.StatusBadRequest, &APIResponse{
			Status:   "error",
			Metadata: metadata(r, time.Time{}),
			Error: &APIError{
				Code:    ErrCodeValidation,
				Message: verrs.Error(),
				Details: map[string]any{"fields": verrs.Fields()},
			},
		})
		return
	}
	respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
}

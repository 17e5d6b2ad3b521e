// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package api

import (
	"net/http"
	"time"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	StoreConnected   bool    `json:"store_connected"`
	Models           int     `json:"models"`
	Endpoints        int     `json:"endpoints"`
	SourceConfigured bool    `json:"source_configured"`
	SourceState      string  `json:"source_state,omitempty"`
	Uptime           float64 `json:"uptime_seconds"`
}

// Health reports store reachability, source state and uptime. It always
// answers 200; Status is "degraded" when a dependency is unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	metas, err := h.store.List(r.Context())
	storeConnected := err == nil

	status := HealthStatus{
		Status:           "healthy",
		Version:          h.version,
		StoreConnected:   storeConnected,
		Models:           len(metas),
		Endpoints:        len(h.cfg.Endpoints),
		SourceConfigured: h.trainer.HasSource(),
		Uptime:           time.Since(h.startTime).Seconds(),
	}
	if h.sourceState != nil {
		status.SourceState = h.sourceState()
	}
	if !storeConnected || status.SourceState == "open" {
		status.Status = "degraded"
	}

	respondSuccess(w, r, http.StatusOK, status, start)
}

// HealthLive answers 200 while the process is alive.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, time.Time{})
}

// HealthReady answers 200 when the store can be read and 503 otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.List(r.Context()); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Model store is not reachable", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]any{"ready": true}, time.Time{})
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package api

import (
	"context"
	"errors"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/source"
	"github.com/tomtom215/rowlens/internal/store"
	"github.com/tomtom215/rowlens/internal/training"
)

// ErrUnknownEndpoint indicates no endpoint is configured for the table and model.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// apiErrorFor maps an error to a status, a code and a client-safe message.
func apiErrorFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrUnknownEndpoint), errors.Is(err, analytics.ErrUnknownModelKind):
		return http.StatusNotFound, ErrCodeUnknownEndpoint, "No such endpoint"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrCodeModelNotFound, "No model stored for this endpoint"
	case errors.Is(err, source.ErrUnknownTable):
		return http.StatusNotFound, ErrCodeNotFound, "Table not found in source"
	case analytics.IsDataError(err):
		return http.StatusUnprocessableEntity, ErrCodeInvalidBatch, err.Error()
	case errors.Is(err, analytics.ErrInconsistentDimension), errors.Is(err, analytics.ErrKindMismatch):
		return http.StatusInternalServerError, ErrCodeModelInvariant, "Stored model does not match the feature layout"
	case errors.Is(err, analytics.ErrInvalidTuning):
		return http.StatusInternalServerError, ErrCodeInternalError, "Endpoint tuning is invalid"
	case errors.Is(err, training.ErrNoSource):
		return http.StatusServiceUnavailable, ErrCodeSourceUnavailable, "No row source is configured"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, ErrCodeSourceUnavailable, "Row source is temporarily unavailable"
	case errors.Is(err, store.ErrNoHistory):
		return http.StatusNotImplemented, ErrCodeStoreError, "Store backend does not keep versions"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "Internal error"
	}
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := apiErrorFor(err)
	respondError(w, r, status, code, message, err)
}

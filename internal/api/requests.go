// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/validation"
)

// TrainRequest is the body of POST /api/{table}/{model}/train.
type TrainRequest struct {
	Rows []analytics.Row `json:"rows"`
}

// ModelQuery holds the query parameters of GET /api/{table}/{model}.
type ModelQuery struct {
	// Version selects a retained version; 0 means the latest.
	Version int `json:"version" validate:"gte=0"`

	// View is "full" (default) or "summary".
	View string `json:"view" validate:"omitempty,oneof=full summary"`
}

const viewSummary = "summary"

// parseModelQuery reads and validates ModelQuery.
func parseModelQuery(r *http.Request) (ModelQuery, error) {
	q := ModelQuery{View: r.URL.Query().Get("view")}

	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, validation.Errors{{Field: "version", Tag: "numeric", Message: "version must be an integer"}}
		}
		q.Version = n
	}

	if err := validation.ValidateStruct(&q); err != nil {
		return q, err
	}
	return q, nil
}

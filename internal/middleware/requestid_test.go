// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/rowlens/internal/logging"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{"generated", "", false},
		{"preserved", "edge-7f3a.42", true},
		{"too long", strings.Repeat("a", 200), false},
		{"header injection", "abc\r\nX-Evil: 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID, gotCorrelation string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID = logging.RequestID(r.Context())
				gotCorrelation = logging.CorrelationID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			header := rec.Header().Get(RequestIDHeader)
			if header != gotID {
				t.Errorf("header %q != context %q", header, gotID)
			}
			if tt.wantSame && gotID != tt.incoming {
				t.Errorf("RequestID = %q, want %q", gotID, tt.incoming)
			}
			if !tt.wantSame {
				if _, err := uuid.Parse(gotID); err != nil {
					t.Errorf("RequestID = %q, want a generated UUID", gotID)
				}
			}
			if gotCorrelation == "" {
				t.Error("correlation ID missing from context")
			}
		})
	}
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	modelKeyKey      contextKey = "model_key"
	loggerKey        contextKey = "logger"
)

// NewCorrelationID returns a short ID that ties together the log lines of one
// training run.
func NewCorrelationID() string {
	return uuid.NewString()[:8]
}

// NewRequestID returns a full UUID for an HTTP request.
func NewRequestID() string {
	return uuid.NewString()
}

// WithCorrelationID stores a correlation ID in ctx. An empty id generates one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewCorrelationID()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation ID in ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// WithRequestID stores a request ID in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithModelKey stores the model key being trained or served.
func WithModelKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, modelKeyKey, key)
}

// ModelKey returns the model key in ctx, or "".
func ModelKey(ctx context.Context) string {
	key, _ := ctx.Value(modelKeyKey).(string)
	return key
}

// WithLogger stores a preconfigured logger in ctx.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Ctx returns the context's logger (or the global one) with correlation_id,
// request_id and model_key attached when present.
//
//	logging.Ctx(ctx).Info().Msg("model stored")
func Ctx(ctx context.Context) *zerolog.Logger {
	base, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		base = Logger()
	}

	zctx := base.With()
	if id := CorrelationID(ctx); id != "" {
		zctx = zctx.Str("correlation_id", id)
	}
	if id := RequestID(ctx); id != "" {
		zctx = zctx.Str("request_id", id)
	}
	if key := ModelKey(ctx); key != "" {
		zctx = zctx.Str("model_key", key)
	}

	logger := zctx.Logger()
	return &logger
}

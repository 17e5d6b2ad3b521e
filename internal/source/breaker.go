// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package source

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/metrics"
)

// BreakerSource guards a RowSource with a circuit breaker, so a failing
// source database stops being queried for a while instead of failing every
// scheduled run.
//
// The breaker uses wall-clock time for its interval and timeout. Tests drive
// it through request counts, not time.
type BreakerSource struct {
	inner  RowSource
	cb     *gobreaker.CircuitBreaker[[]analytics.Row]
	name   string
	logger zerolog.Logger
}

// BreakerSettings tune the breaker. Zero values take the defaults:
// 3 half-open probes, a 1 minute counting window, a 2 minute open period,
// and tripping at a 60% failure rate over at least 10 requests.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 3
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = 2 * time.Minute
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.6
	}
	return s
}

// NewBreakerSource wraps inner. name labels the breaker's metrics.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewBreakerSource(inner RowSource, name string, settings BreakerSettings, logger zerolog.Logger) *BreakerSource {
	settings = settings.withDefaults()
	logger = logger.With().Str("breaker", name).Logger()

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]analytics.Row](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= settings.FailureRatio {
				logger.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("Opening circuit")
				return true
			}
			return false
		},
		// Cancellation is the caller's doing, not the source failing.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrUnknownTable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logger.Info().Str("from", fromStr).Str("to", toStr).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerSource{inner: inner, cb: cb, name: name, logger: logger}
}

// Columns is not guarded; it is a cheap catalog lookup.
func (b *BreakerSource) Columns(ctx context.Context, table string) ([]string, error) {
	return b.inner.Columns(ctx, table)
}

// Fetch runs inner.Fetch through the breaker.
func (b *BreakerSource) Fetch(ctx context.Context, q Query) ([]analytics.Row, error) {
	rows, err := b.cb.Execute(func() ([]analytics.Row, error) {
		return b.inner.Fetch(ctx, q)
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		b.logger.Warn().Err(err).Str("table", q.Table).Msg("Source request rejected")
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return rows, err
}

// State reports the breaker state: "closed", "half-open" or "open".
func (b *BreakerSource) State() string {
	return stateToString(b.cb.State())
}

// Close closes the wrapped source.
func (b *BreakerSource) Close() error {
	return b.inner.Close()
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/logging"
	"github.com/tomtom215/rowlens/internal/metrics"
	"github.com/tomtom215/rowlens/internal/training"
)

// Syncer trains every configured endpoint from the row source.
// Satisfied by *training.Coordinator.
type Syncer interface {
	SyncAll(ctx context.Context) ([]training.Result, error)
}

// TrainingServiceConfig holds the schedule.
type TrainingServiceConfig struct {
	// OnStartup runs once as soon as the service starts.
	OnStartup bool

	// Interval between scheduled runs. Default: 1h
	Interval time.Duration

	// Timeout bounds one run over all endpoints. Default: 15m
	Timeout time.Duration
}

// TrainingService runs scheduled incremental training.
type TrainingService struct {
	syncer    Syncer
	config    TrainingServiceConfig
	endpoints int
	logger    zerolog.Logger
	name      string
}

// NewTrainingService creates the scheduler. endpoints is the number of
// configured endpoints, used to tell partial from total failure.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTrainingService(syncer Syncer, cfg TrainingServiceConfig, endpoints int, logger zerolog.Logger) *TrainingService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	return &TrainingService{
		syncer:    syncer,
		config:    cfg,
		endpoints: endpoints,
		logger:    logger.With().Str("service", "training").Logger(),
		name:      "training-service",
	}
}

// Serve implements suture.Service.
func (s *TrainingService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("on_startup", s.config.OnStartup).
		Dur("interval", s.config.Interval).
		Int("endpoints", s.endpoints).
		Msg("Training service starting")

	if s.config.OnStartup {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Training service shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

// run syncs every endpoint once. Failures are logged, never returned: a
// source outage must not make suture restart the scheduler in a tight loop.
func (s *TrainingService) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	runCtx = logging.WithCorrelationID(runCtx, "")

	start := time.Now()
	results, err := s.syncer.SyncAll(runCtx)

	failed := 0
	if err != nil {
		failed = max(s.endpoints-len(results), 1)
		if ctx.Err() != nil {
			return
		}
	}
	metrics.RecordScheduledRun(s.endpoints, failed, time.Now())

	var batches int
	var rows int64
	updated := 0
	for i := range results {
		batches += results[i].Batches
		rows += results[i].Rows
		if results[i].Version != results[i].Previous {
			updated++
		}
	}

	event := logging.Ctx(runCtx).Info()
	if err != nil {
		event = logging.Ctx(runCtx).Warn().Err(err)
		if errors.Is(err, context.DeadlineExceeded) {
			event = event.Dur("timeout", s.config.Timeout)
		}
	}
	event.
		Int("endpoints", len(results)).
		Int("failed", failed).
		Int("updated", updated).
		Int("batches", batches).
		Int64("rows", rows).
		Dur("duration", time.Since(start)).
		Msg("Scheduled training run complete")
}

// String implements fmt.Stringer.
func (s *TrainingService) String() string {
	return s.name
}

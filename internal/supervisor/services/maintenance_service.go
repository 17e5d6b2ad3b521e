// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/metrics"
	"github.com/tomtom215/rowlens/internal/store"
)

// StoreMaintenanceService runs store housekeeping on an interval.
type StoreMaintenanceService struct {
	store    store.Maintainer
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewStoreMaintenanceService creates the service. interval <= 0 means 10m.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStoreMaintenanceService(st store.Maintainer, interval time.Duration, logger zerolog.Logger) *StoreMaintenanceService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreMaintenanceService{
		store:    st,
		interval: interval,
		logger:   logger.With().Str("service", "store-maintenance").Logger(),
		name:     "store-maintenance",
	}
}

// Serve implements suture.Service. A failed pass is logged and retried on
// the next tick.
func (s *StoreMaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			err := s.store.Maintain(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.RecordMaintenance(err)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Store maintenance failed")
				continue
			}
			s.logger.Debug().Dur("duration", time.Since(start)).Msg("Store maintenance complete")
		}
	}
}

// String implements fmt.Stringer.
func (s *StoreMaintenanceService) String() string {
	return s.name
}

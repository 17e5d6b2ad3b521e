// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package store

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/config"
)

// Open builds the configured backend, wrapped in a CachedStore when
// cfg.CacheSize is positive.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Open(cfg config.StoreConfig, logger zerolog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Backend {
	case config.BackendBadger:
		s, err = OpenBadger(cfg.Path, cfg.RetainVersions, logger)
	case config.BackendFile:
		s, err = NewFileStore(cfg.Path, cfg.RetainVersions, logger)
	case config.BackendMemory:
		s = NewMemoryStore(cfg.RetainVersions)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		s = NewCachedStore(s, cfg.CacheSize, cfg.CacheTTL)
	}
	return s, nil
}

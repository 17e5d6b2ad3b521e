// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package store persists trained models between runs.
//
// Every model lives under its key, "table/kind" (for example
// "orders/anomaly"). A Put replaces the current model and records it in the
// key's version history, which is pruned to the configured retention. Three
// backends exist:
//
//   - BadgerStore: embedded BadgerDB, JSON values (default)
//   - FileStore: one gzip-compressed, checksummed file per version
//   - MemoryStore: process memory only, for tests and throwaway runs
//
// CachedStore adds a read-through LRU in front of any backend. KeyLocker
// serialises writers per key; the stores themselves only guarantee that a
// single Put is atomic.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/metrics"
	"github.com/tomtom215/rowlens/internal/validation"
)

var (
	// ErrNotFound is returned when no model (or version) exists for a key.
	ErrNotFound = errors.New("model not found")

	// ErrInvalidKey is returned for keys that are not "table/kind".
	ErrInvalidKey = errors.New("invalid model key")
)

// Store is the model persistence contract.
type Store interface {
	// Get returns the current model for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*analytics.Model, error)

	// Put stores m under m.Key as the current model.
	Put(ctx context.Context, m *analytics.Model) error

	// Delete removes the model and its history, or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// List returns metadata for every current model, sorted by key.
	List(ctx context.Context) ([]Meta, error)

	Close() error
}

// History is implemented by stores that keep previous versions.
type History interface {
	// Versions returns metadata for every retained version, newest first.
	Versions(ctx context.Context, key string) ([]Meta, error)

	// GetVersion returns one retained version, or ErrNotFound.
	GetVersion(ctx context.Context, key string, version int) (*analytics.Model, error)
}

// Maintainer is implemented by stores with periodic housekeeping.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// Meta summarises a stored model without its payload.
type Meta struct {
	Key          string              `json:"key"`
	Kind         analytics.ModelKind `json:"kind"`
	Version      int                 `json:"version"`
	RunID        string              `json:"run_id,omitempty"`
	LastUpdated  time.Time           `json:"last_updated"`
	SavedAt      time.Time           `json:"saved_at"`
	TotalPoints  int                 `json:"total_points"`
	Dimensions   int                 `json:"dimensions"`
	ClusterCount int                 `json:"cluster_count"`
	AnomalyCount int                 `json:"anomaly_count"`
	SizeBytes    int64               `json:"size_bytes,omitempty"`
	Checksum     string              `json:"checksum,omitempty"`
}

// MetaOf builds the metadata for m.
func MetaOf(m *analytics.Model, savedAt time.Time) Meta {
	return Meta{
		Key:          m.Key,
		Kind:         m.Kind,
		Version:      m.Version,
		RunID:        m.RunID,
		LastUpdated:  m.LastUpdated,
		SavedAt:      savedAt,
		TotalPoints:  m.Stats.TotalPoints,
		Dimensions:   m.Stats.Dimensions,
		ClusterCount: m.Stats.ClusterCount,
		AnomalyCount: m.Stats.AnomalyCount,
	}
}

// ValidateKey checks that key has the form "table/kind" with identifier parts.
func ValidateKey(key string) error {
	table, kind, ok := strings.Cut(key, "/")
	if !ok || !validation.IsIdentifier(table) || !validation.IsIdentifier(kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func checkModel(m *analytics.Model) error {
	if m == nil {
		return errors.New("nil model")
	}
	return ValidateKey(m.Key)
}

// observe records one backend operation; a clean ErrNotFound is not an error.
func observe(backend, op string, start time.Time, err error) {
	notFound := errors.Is(err, ErrNotFound)
	if notFound {
		err = nil
	}
	metrics.RecordStoreOperation(backend, op, time.Since(start), err, notFound)
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package config loads Rowlens configuration.
//
// Values are layered: built-in defaults, then an optional YAML file
// (CONFIG_PATH, ./config.yaml or /etc/rowlens/config.yaml), then environment
// variables. Environment variables always win.
//
// Example config.yaml:
//
//	store:
//	  backend: badger
//	  path: /data/models
//	source:
//	  dsn: /data/warehouse.duckdb
//	defaults:
//	  eps: 0.3
//	  k: 4
//	endpoints:
//	  - table: orders
//	    model: anomaly
//	    allow_read: [amount, region, channel]
//	  - table: orders
//	    model: recommendation
//	    tuning:
//	      weighted_fields: {amount: 2}
//
// The same endpoints can be given as ENDPOINTS=orders:anomaly,orders:recommendation.
package config

import (
	"time"

	"github.com/tomtom215/rowlens/internal/analytics"
)

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig     `koanf:"server"`
	Logging  LoggingConfig    `koanf:"logging"`
	Store    StoreConfig      `koanf:"store"`
	Source   SourceConfig     `koanf:"source"`
	Training TrainingConfig   `koanf:"training"`
	Defaults analytics.Tuning `koanf:"defaults"`

	// Endpoints lists the table/model pairs Rowlens serves and trains.
	Endpoints []Endpoint `koanf:"endpoints" validate:"dive"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// MaxBodyBytes caps POST /train request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"gt=0"`

	// RateLimitReqs per RateLimitWindow per client IP. Zero disables limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS headers.
	CORSOrigins []string `koanf:"cors_origins" validate:"omitempty,dive,required"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	// Level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`

	// Format: json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	Caller bool `koanf:"caller"`
}

// Store backends.
const (
	BackendBadger = "badger"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// StoreConfig selects and tunes model persistence.
type StoreConfig struct {
	Backend string `koanf:"backend" validate:"oneof=badger file memory"`

	// Path is the badger directory or the file store directory.
	Path string `koanf:"path"`

	// RetainVersions is how many previous versions are kept per model.
	RetainVersions int `koanf:"retain_versions" validate:"gte=0"`

	// CacheSize is the read cache capacity in models. Zero disables caching.
	CacheSize int           `koanf:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`

	// MaintenanceInterval schedules value log GC (badger) and temp file
	// cleanup (file). Zero disables maintenance.
	MaintenanceInterval time.Duration `koanf:"maintenance_interval" validate:"gte=0"`
}

// SourceConfig configures the DuckDB row source. An empty DSN disables
// scheduled training; models can still be trained over HTTP.
type SourceConfig struct {
	DSN          string        `koanf:"dsn"`
	BatchSize    int           `koanf:"batch_size" validate:"gte=1"`
	QueryTimeout time.Duration `koanf:"query_timeout" validate:"gt=0"`

	// MaxBatches bounds one scheduled run per endpoint. Zero means no limit.
	MaxBatches int `koanf:"max_batches" validate:"gte=0"`
}

// TrainingConfig configures scheduled training.
type TrainingConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Interval  time.Duration `koanf:"interval" validate:"gt=0"`
	OnStartup bool          `koanf:"on_startup"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
}

// Endpoint binds a table to a model kind.
type Endpoint struct {
	Table string `koanf:"table" validate:"required,identifier"`
	Model string `koanf:"model" validate:"required"`

	// AllowRead restricts the fields fed to the model. Empty means every column.
	AllowRead []string `koanf:"allow_read" validate:"omitempty,unique,dive,identifier"`

	// OrderBy is the column that keeps scheduled reads stable across runs.
	// Empty uses the source's insertion order.
	OrderBy string `koanf:"order_by" validate:"omitempty,identifier"`

	// Tuning overrides Config.Defaults for this endpoint only.
	Tuning analytics.TuningOverride `koanf:"tuning"`
}

// Key is the model key, "table/kind", using the canonical kind name.
func (e Endpoint) Key() string {
	if kind, err := e.Kind(); err == nil {
		return ModelKey(e.Table, kind.String())
	}
	return ModelKey(e.Table, e.Model)
}

// Kind parses Model.
func (e Endpoint) Kind() (analytics.ModelKind, error) {
	return analytics.ParseModelKind(e.Model)
}

// ModelKey joins a table and a model name.
func ModelKey(table, model string) string {
	return table + "/" + model
}

// Endpoint finds the endpoint for table and model. Model aliases resolve to
// their canonical kind, so "anomalies" finds an "anomaly" endpoint.
func (c *Config) Endpoint(table, model string) (Endpoint, bool) {
	want, err := analytics.ParseModelKind(model)
	if err != nil {
		return Endpoint{}, false
	}
	for _, ep := range c.Endpoints {
		kind, err := ep.Kind()
		if err == nil && ep.Table == table && kind == want {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// TuningFor resolves the effective tuning of ep.
func (c *Config) TuningFor(ep *Endpoint) analytics.Tuning {
	return c.Defaults.Merge(ep.Tuning)
}

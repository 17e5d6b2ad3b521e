// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/rowlens/internal/analytics"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Backend != BackendBadger {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendBadger)
	}
	if cfg.Training.Interval != time.Hour {
		t.Errorf("Training.Interval = %v, want 1h", cfg.Training.Interval)
	}
	if cfg.Defaults.Eps != 0.5 || cfg.Defaults.K != 3 {
		t.Errorf("Defaults = {eps:%v k:%v}, want {eps:0.5 k:3}", cfg.Defaults.Eps, cfg.Defaults.K)
	}
	if cfg.Defaults.ScalingRange != [2]float64{0, 1} {
		t.Errorf("Defaults.ScalingRange = %v, want [0 1]", cfg.Defaults.ScalingRange)
	}
	if len(cfg.Endpoints) != 0 {
		t.Errorf("Endpoints = %v, want none", cfg.Endpoints)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: file
  path: /tmp/models
defaults:
  eps: 0.3
  missing_value_strategy: median
endpoints:
  - table: orders
    model: anomalies
    allow_read: [amount, region]
  - table: orders
    model: recommendation
    tuning:
      k: 5
      scaling_range: [-1, 1]
      weighted_fields:
        amount: 2
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Store.Backend != BackendFile || cfg.Store.Path != "/tmp/models" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Defaults.Eps != 0.3 || cfg.Defaults.MissingValueStrategy != analytics.StrategyMedian {
		t.Errorf("Defaults = {eps:%v strategy:%v}", cfg.Defaults.Eps, cfg.Defaults.MissingValueStrategy)
	}
	if cfg.Defaults.K != 3 {
		t.Errorf("Defaults.K = %d, want default 3", cfg.Defaults.K)
	}
	if len(cfg.Endpoints) != 2 {
		t.Fatalf("len(Endpoints) = %d, want 2", len(cfg.Endpoints))
	}

	anomaly := cfg.Endpoints[0]
	if anomaly.Key() != "orders/anomaly" {
		t.Errorf("Key() = %q, want orders/anomaly", anomaly.Key())
	}
	if strings.Join(anomaly.AllowRead, ",") != "amount,region" {
		t.Errorf("AllowRead = %v", anomaly.AllowRead)
	}

	rec, ok := cfg.Endpoint("orders", "clustering")
	if !ok {
		t.Fatal("Endpoint(orders, clustering) not found")
	}
	tuning := cfg.TuningFor(&rec)
	if tuning.K != 5 || tuning.Eps != 0.3 {
		t.Errorf("TuningFor() = {k:%d eps:%v}, want {k:5 eps:0.3}", tuning.K, tuning.Eps)
	}
	if tuning.ScalingRange != [2]float64{-1, 1} {
		t.Errorf("ScalingRange = %v, want [-1 1]", tuning.ScalingRange)
	}
	if tuning.Weight("amount") != 2 {
		t.Errorf("Weight(amount) = %v, want 2", tuning.Weight("amount"))
	}
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
server:
  port: 9000
`)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("TRAIN_INTERVAL", "15m")
	t.Setenv("EPS", "0.75")
	t.Setenv("SCALING_RANGE", "-1,1")
	t.Setenv("ENDPOINTS", "orders:anomaly, users:recommendation")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000 from file", cfg.Server.Port)
	}
	if cfg.Training.Interval != 15*time.Minute {
		t.Errorf("Training.Interval = %v, want 15m", cfg.Training.Interval)
	}
	if cfg.Defaults.Eps != 0.75 {
		t.Errorf("Defaults.Eps = %v, want 0.75", cfg.Defaults.Eps)
	}
	if cfg.Defaults.ScalingRange != [2]float64{-1, 1} {
		t.Errorf("Defaults.ScalingRange = %v, want [-1 1]", cfg.Defaults.ScalingRange)
	}
	if len(cfg.Endpoints) != 2 || cfg.Endpoints[1].Key() != "users/recommendation" {
		t.Errorf("Endpoints = %+v", cfg.Endpoints)
	}
	if strings.Join(cfg.Server.CORSOrigins, " ") != "https://a.example https://b.example" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad backend", "store:\n  backend: s3\n", "backend"},
		{"bad port", "server:\n  port: 70000\n", "port"},
		{"bad table", "endpoints:\n  - table: \"orders;\"\n    model: anomaly\n", "table"},
		{"unknown model", "endpoints:\n  - table: orders\n    model: sentiment\n", "unknown model kind"},
		{"duplicate", "endpoints:\n  - {table: t, model: anomaly}\n  - {table: t, model: anomalies}\n", "duplicate"},
		{"bad defaults", "defaults:\n  eps: 0\n", "defaults"},
		{"bad override", "endpoints:\n  - table: t\n    model: anomaly\n    tuning: {k: 0}\n", "endpoints[0]"},
		{"missing path", "store:\n  backend: file\n  path: \"\"\n", "STORE_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile_InvalidEndpointEnv(t *testing.T) {
	t.Setenv("ENDPOINTS", "orders")
	if _, err := LoadFile(""); err == nil {
		t.Error("LoadFile() error = nil, want invalid endpoint error")
	}
}

func TestValidate_TuningSentinel(t *testing.T) {
	cfg := defaultConfig()
	cfg.Defaults.MinPts = 0

	if err := cfg.Validate(); !errors.Is(err, analytics.ErrInvalidTuning) {
		t.Errorf("Validate() error = %v, want %v", err, analytics.ErrInvalidTuning)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"LOG_LEVEL":  "logging.level",
		"HTTP_PORT":  "server.port",
		"SOURCE_DSN": "source.dsn",
		"EPS":        "defaults.eps",
		"HOME":       "",
		"PATH":       "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilePath(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")
	t.Setenv(ConfigPathEnvVar, path)
	if got := FilePath(); got != path {
		t.Errorf("FilePath() = %q, want %q", got, path)
	}
}

func TestWatchConfigFile(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	changed := make(chan struct{}, 1)
	if err := WatchConfigFile(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("WatchConfigFile() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("callback not called after the file changed")
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

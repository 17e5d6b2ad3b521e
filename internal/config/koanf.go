// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/rowlens/internal/analytics"
)

// DefaultConfigPaths are searched in order; the first existing file is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/rowlens/config.yaml",
	"/etc/rowlens/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			MaxBodyBytes:    32 << 20,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend:        BackendBadger,
			Path:           "/data/models",
			RetainVersions: 5,
			CacheSize:      64,
			CacheTTL:       10 * time.Minute,

			MaintenanceInterval: 10 * time.Minute,
		},
		Source: SourceConfig{
			BatchSize:    5000,
			QueryTimeout: time.Minute,
		},
		Training: TrainingConfig{
			Enabled:   true,
			Interval:  time.Hour,
			OnStartup: true,
			Timeout:   15 * time.Minute,
		},
		Defaults: analytics.DefaultTuning(),
	}
}

// Load builds the configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file; an empty path skips the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// LOG_LEVEL -> logging.level, EPS -> defaults.eps, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processEndpoints(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// FilePath returns the config file Load would read, or "" when there is none.
func FilePath() string {
	return findConfigFile()
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lowercased) to config paths.
// Unlisted variables are ignored so unrelated environment never leaks in.
var envMappings = map[string]string{
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"max_body_bytes":    "server.max_body_bytes",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",
	"cors_origins":      "server.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"store_backend":         "store.backend",
	"store_path":            "store.path",
	"store_retain_versions": "store.retain_versions",
	"store_cache_size":      "store.cache_size",
	"store_cache_ttl":       "store.cache_ttl",
	"store_maintenance":     "store.maintenance_interval",

	"source_dsn":           "source.dsn",
	"source_batch_size":    "source.batch_size",
	"source_query_timeout": "source.query_timeout",
	"source_max_batches":   "source.max_batches",

	"train_enabled":    "training.enabled",
	"train_interval":   "training.interval",
	"train_on_startup": "training.on_startup",
	"train_timeout":    "training.timeout",

	"eps":                    "defaults.eps",
	"min_pts":                "defaults.min_pts",
	"k":                      "defaults.k",
	"min_cluster_size":       "defaults.min_cluster_size",
	"similarity_threshold":   "defaults.similarity_threshold",
	"merge_similarity":       "defaults.merge_similarity",
	"scaling_range":          "defaults.scaling_range",
	"missing_value_strategy": "defaults.missing_value_strategy",
	"id_field":               "defaults.id_field",
	"max_iterations":         "defaults.max_iterations",
	"seed":                   "defaults.seed",

	"endpoints": "endpoints",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"defaults.scaling_range",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := splitList(strVal)
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// processEndpoints expands ENDPOINTS="orders:anomaly,users:recommendation".
func processEndpoints(k *koanf.Koanf) error {
	spec, ok := k.Get("endpoints").(string)
	if !ok {
		return nil
	}

	list := make([]map[string]any, 0)
	for _, item := range splitList(spec) {
		table, model, found := strings.Cut(item, ":")
		if !found || table == "" || model == "" {
			return fmt.Errorf("invalid endpoint %q: want table:model", item)
		}
		list = append(list, map[string]any{"table": table, "model": model})
	}
	if err := k.Set("endpoints", list); err != nil {
		return fmt.Errorf("failed to set endpoints: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WatchConfigFile calls callback whenever path changes on disk.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/analytics/anomaly"
	"github.com/tomtom215/rowlens/internal/analytics/cluster"
	"github.com/tomtom215/rowlens/internal/analytics/features"
	"github.com/tomtom215/rowlens/internal/api"
	"github.com/tomtom215/rowlens/internal/config"
	"github.com/tomtom215/rowlens/internal/logging"
	"github.com/tomtom215/rowlens/internal/source"
	"github.com/tomtom215/rowlens/internal/store"
	"github.com/tomtom215/rowlens/internal/supervisor"
	"github.com/tomtom215/rowlens/internal/supervisor/services"
	"github.com/tomtom215/rowlens/internal/training"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("store_backend", cfg.Store.Backend).
		Bool("source", cfg.Source.DSN != "").
		Int("endpoints", len(cfg.Endpoints)).
		Msg("Starting Rowlens")

	if len(cfg.Endpoints) == 0 {
		logging.Warn().Msg("No endpoints configured (ENDPOINTS or endpoints:); every model route will answer 404")
	}

	st, err := store.Open(cfg.Store, logging.WithComponent("store"))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open model store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing model store")
		}
	}()
	logging.Info().Str("backend", cfg.Store.Backend).Str("path", cfg.Store.Path).Msg("Model store opened")

	src, breaker := openSource(cfg)
	if src != nil {
		defer func() {
			if err := src.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing row source")
			}
		}()
	}

	engine := analytics.NewEngine(features.NewBuilder(logging.WithComponent("features")), logging.WithComponent("engine"))
	engine.RegisterTrainer(anomaly.NewDetector(logging.WithComponent("anomaly")))
	engine.RegisterTrainer(cluster.NewRecommender(logging.WithComponent("cluster")))

	coordinator := training.NewCoordinator(engine, st, src, cfg, logging.WithComponent("training"))

	handler := api.NewHandler(cfg, st, coordinator)
	handler.SetVersion(version)
	if breaker != nil {
		handler.SetSourceState(breaker.State)
	}
	router := api.NewRouter(handler, api.NewChiMiddleware(api.MiddlewareConfigFrom(cfg.Server)))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	watchConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if m, ok := st.(store.Maintainer); ok && cfg.Store.MaintenanceInterval > 0 {
		tree.AddStorageService(services.NewStoreMaintenanceService(m, cfg.Store.MaintenanceInterval, logging.WithComponent("supervisor")))
	}

	switch {
	case !cfg.Training.Enabled:
		logging.Info().Msg("Scheduled training disabled (TRAIN_ENABLED=false)")
	case src == nil:
		logging.Info().Msg("Scheduled training disabled: no row source (SOURCE_DSN unset)")
	default:
		tree.AddTrainingService(services.NewTrainingService(coordinator, services.TrainingServiceConfig{
			OnStartup: cfg.Training.OnStartup,
			Interval:  cfg.Training.Interval,
			Timeout:   cfg.Training.Timeout,
		}, len(cfg.Endpoints), logging.WithComponent("supervisor")))
	}

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second, logging.WithComponent("supervisor")))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport() //nolint:errcheck // best-effort report
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Rowlens stopped")
}

// openSource opens the DuckDB row source behind a circuit breaker. Both
// results are nil when no DSN is configured or the source cannot be opened;
// the API then still serves and trains from posted rows.
func openSource(cfg *config.Config) (source.RowSource, *source.BreakerSource) {
	if cfg.Source.DSN == "" {
		return nil, nil
	}

	duck, err := source.OpenDuckDB(cfg.Source.DSN, cfg.Source.QueryTimeout, logging.WithComponent("source"))
	if err != nil {
		logging.Error().Err(err).Str("dsn", logging.RedactDSN(cfg.Source.DSN)).Msg("Failed to open row source; scheduled training disabled")
		return nil, nil
	}

	breaker := source.NewBreakerSource(duck, "duckdb", source.BreakerSettings{}, logging.WithComponent("source"))
	return breaker, breaker
}

// watchConfig follows the config file and applies log level changes.
func watchConfig() {
	path := config.FilePath()
	if path == "" {
		return
	}

	err := config.WatchConfigFile(path, func() {
		cfg, err := config.LoadFile(path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid config change")
			return
		}
		logging.SetLevelString(cfg.Logging.Level)
		logging.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
	}
}

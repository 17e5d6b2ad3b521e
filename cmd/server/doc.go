// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

/*
Command server runs Rowlens: it trains incremental anomaly and clustering
models over configured tables and serves them over HTTP.

# Process Layout

	RootSupervisor ("rowlens")
	├── StorageSupervisor ("storage-layer")
	│   └── StoreMaintenanceService
	├── TrainingSupervisor ("training-layer")
	│   └── TrainingService (SOURCE_DSN set and TRAIN_ENABLED=true)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Startup order:

 1. Configuration (koanf: defaults, config.yaml, environment)
 2. Logging (zerolog)
 3. Model store (badger, file or memory; optional read cache)
 4. Row source (DuckDB behind a circuit breaker, optional)
 5. Analytics engine and training coordinator
 6. HTTP API (chi)
 7. Supervisor tree

# Configuration

The most used environment variables:

	ENDPOINTS=orders:anomaly,orders:recommendation
	SOURCE_DSN=/data/warehouse.duckdb
	STORE_BACKEND=badger STORE_PATH=/data/models
	TRAIN_INTERVAL=1h
	HTTP_PORT=8080
	LOG_LEVEL=info

Changes to the config file adjust the log level without a restart.

# Signals

SIGINT and SIGTERM cancel the root context: the HTTP server drains, the
training run in progress is canceled between batches, then the store and the
source are closed.
*/
package main

// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package analytics implements the incremental unsupervised analytics engine.
//
// # Architecture
//
// The engine turns raw tabular rows into fixed-dimension feature vectors and
// maintains two online models over them:
//
//   - Anomaly: density clustering (DBSCAN); points outside every cluster are anomalies
//   - Recommendation: centroid clustering (k-means) with per-point similarity scores
//
// Both support training from scratch and incremental merges of new batches
// into a previously persisted model.
//
// # Data Flow
//
//	rows + Tuning
//	    -> MatrixBuilder (internal/analytics/features)
//	    -> Batch{Matrix, Rows, Processors}
//	    -> Trainer.Train or Trainer.Merge (internal/analytics/anomaly, internal/analytics/cluster)
//	    -> Model{..., Stats} (internal/analytics/stats)
//
// # Value Semantics
//
// A Model is a plain value. Train and Merge never mutate the model passed in;
// they return a new Model that the caller persists. The engine holds no state
// between calls apart from its registered trainers, so it performs no I/O and
// leaves single-writer-per-key enforcement to the caller (see internal/training).
//
// # Usage
//
//	engine := analytics.NewEngine(features.NewBuilder(logger), logger)
//	engine.RegisterTrainer(anomaly.NewDetector(logger))
//	engine.RegisterTrainer(cluster.NewRecommender(logger))
//
//	model, err := engine.Train(ctx, analytics.Request{
//	    Key:      "orders/anomaly",
//	    Kind:     analytics.KindAnomaly,
//	    Rows:     rows,
//	    Existing: previous, // nil for the first round
//	})
//
// # Errors
//
// All sentinel errors in errors.go are fatal to the current call: no partial
// model is returned and the previous model, if any, remains authoritative.
package analytics

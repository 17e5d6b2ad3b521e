// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

/*
Package services adapts Rowlens components to suture.Service.

Each wrapper turns a component lifecycle into Serve(ctx) error: it runs until
ctx is canceled and returns an error when it wants suture to restart it.

HTTPServerService wraps *http.Server: ListenAndServe in a goroutine, Shutdown
with a timeout when the context ends.

TrainingService runs training.Coordinator.SyncAll on startup (optionally) and
then on a fixed interval, each run bounded by its own timeout. Endpoint
failures are logged and counted; they never stop the loop.

StoreMaintenanceService calls store.Maintainer.Maintain on an interval:
value log GC for badger, temp file cleanup for the file store.

Every service implements fmt.Stringer so supervisor events name it.
*/
package services

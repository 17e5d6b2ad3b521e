// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

/*
Package middleware provides HTTP middleware shared by the API router.

Components:

  - RequestID: propagates or generates X-Request-ID and seeds the logging
    context with request and correlation IDs
  - Metrics: Prometheus request instrumentation labelled by chi route
    pattern, with slow request logging
  - AccessLog: one structured log line per request

Typical stack (chi):

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Metrics(time.Second))

Route labels use the matched chi pattern ("/api/{table}/{model}"), never the
raw path, so table names do not create new metric series.
*/
package middleware

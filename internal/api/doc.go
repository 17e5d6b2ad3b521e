// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

/*
Package api provides the HTTP API for stored models.

Routes (chi):

	GET    /api/v1/health              health summary
	GET    /api/v1/health/live         liveness probe
	GET    /api/v1/health/ready        readiness probe (store reachable)
	GET    /api/v1/models              metadata of every stored model
	GET    /api/v1/endpoints           configured endpoints and their last run
	GET    /api/{table}/{model}        stored model (?version=N, ?view=summary)
	DELETE /api/{table}/{model}        drop the stored model
	GET    /api/{table}/{model}/stats  model statistics
	GET    /api/{table}/{model}/versions  retained versions, newest first
	POST   /api/{table}/{model}/train  train or merge {"rows": [...]}
	POST   /api/{table}/{model}/sync   pull unconsumed rows from the source
	GET    /metrics                    Prometheus metrics

{model} accepts the kind aliases of analytics.ParseModelKind, so
/api/orders/anomalies and /api/orders/anomaly address the same model. Only
configured endpoints are served; anything else is 404.

Every JSON response uses the same envelope:

	{
	  "status": "success" | "error",
	  "data": ...,
	  "metadata": {"timestamp": "...", "request_id": "...", "query_time_ms": 3},
	  "error": {"code": "INVALID_BATCH", "message": "..."}
	}

Training errors caused by the submitted rows map to 422, internal
invariant failures to 500.
*/
package api

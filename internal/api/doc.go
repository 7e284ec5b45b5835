// Package api serves the daemon's read-only HTTP status surface and the
// client the CLI uses to query it.
//
// Routes (gorilla/mux):
//
//	GET /health     liveness plus load, counts and dependency availability
//	GET /api/jobs   queued and running jobs and recent outcomes
//	GET /metrics    Prometheus exposition
//
// DTOs use camelCase JSON tags and RFC3339 timestamps with milliseconds.
// Every request except /metrics and /health is counted in
// pengystream_http_requests_total by route template.
package api

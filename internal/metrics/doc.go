// Package metrics defines the Prometheus collectors exported on /metrics.
//
// Collectors are registered with the default registry at package init via
// promauto, so components update them directly:
//
//	metrics.JobsTotal.WithLabelValues("succeeded").Inc()
package metrics

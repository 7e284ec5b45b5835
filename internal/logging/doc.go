// Package logging assembles structured slog loggers and formatting helpers used
// across the daemon.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so job code can tag log lines
// with the job ID and source path. The package also provides a no-op logger
// for tests and wiring code that cannot fail.
package logging

// Package daemonctl starts and stops a background PengyStream daemon from the
// CLI. The flock lock held by a running daemon is the source of truth for
// liveness; the pid file names the process to signal.
package daemonctl

// Package intake turns filesystem notifications into scheduler candidates.
//
// Watcher subscribes to every directory under the watch roots with fsnotify
// and forwards create and write events. Debouncer collapses bursts of events
// per path and waits until a file has stopped growing before submitting it,
// so half-copied files are never probed. Anything intake misses (overflowed
// event queues, files that appeared while the daemon was down) is picked up by
// the reconciliation sweep.
package intake

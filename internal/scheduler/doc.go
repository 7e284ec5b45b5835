// Package scheduler owns the job registry and the dispatch loop.
//
// Enqueue filters a candidate (suffix marker, up-to-date output, duplicate
// path, cached verdict), probes and classifies it, and queues a Job when a
// conversion is needed. Run pops the head of the FIFO queue whenever the
// admission controller admits it and runs the transform in its own
// goroutine. A deferred head job is retried before any later job is
// considered. On shutdown queued jobs are cancelled, running processes are
// terminated, and partial outputs are removed.
//
// The registry (path to active job) is the only state shared between the
// enqueue path and job completion; it is guarded by a single mutex.
package scheduler

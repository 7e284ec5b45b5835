// Package daemon coordinates the long-running PengyStream process.
//
// It wires the admission controller, scheduler, reconciliation sweep, event
// intake and status API into a single lifecycle with flock-based locking to
// prevent multiple instances. Run blocks until its context is cancelled, then
// stops intake, lets the scheduler terminate running transforms, and performs
// a final orphan cleanup before releasing the lock.
//
// Keep orchestration logic here: classification, admission and dispatch
// live in their own packages while the daemon focuses on startup, shutdown
// and periodic status reporting.
package daemon

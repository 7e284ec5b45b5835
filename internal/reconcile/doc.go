// Package reconcile walks the watch directories to repair state that event
// intake cannot see.
//
// CleanOrphans deletes converted outputs whose source is gone and partial
// outputs left behind by interrupted jobs. Rescan submits source files that
// have no up-to-date output and that the scheduler does not already know
// about. Both passes are idempotent: running them twice against an unchanged
// tree deletes and submits nothing the second time.
package reconcile

// Package admission gates the start of new transcode jobs on the number of
// running jobs and on host CPU/GPU load.
//
// The controller owns the running-job count. TryAdmit either reserves a slot
// and returns Admitted, or returns a deferral reason; Release frees the slot
// when the job finishes. Load snapshots are cached and re-sampled only when
// older than the policy's recheck interval. Running jobs are never
// preempted.
package admission

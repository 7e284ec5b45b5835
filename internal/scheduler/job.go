package scheduler

import (
	"time"

	"pengystream/internal/classify"
)

// Origin records how a candidate was discovered.
type Origin string

const (
	OriginEvent  Origin = "event"
	OriginSweep  Origin = "sweep"
	OriginManual Origin = "manual"
)

// Candidate identifies a source media file believed to need evaluation.
type Candidate struct {
	Path         string
	Size         int64
	ModTime      time.Time
	DiscoveredAt time.Time
	Origin       Origin
}

// Status is the lifecycle state of a Job.
type Status int

const (
	StatusQueued Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Job is a copy of a unit of work as seen by callers. The scheduler keeps the
// live record and the process handle private.
type Job struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	Output     string        `json:"output"`
	Action     string        `json:"action"`
	Status     Status        `json:"status"`
	Origin     Origin        `json:"origin"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	PID        int           `json:"pid,omitempty"`
	Error      string        `json:"error,omitempty"`
	Plan       classify.Plan `json:"-"`
}

// Duration reports how long the job has been running, or ran.
func (j Job) Duration(now time.Time) time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	if !j.FinishedAt.IsZero() {
		return j.FinishedAt.Sub(j.StartedAt)
	}
	return now.Sub(j.StartedAt)
}

type job struct {
	Job
	candidate Candidate
}

func (j *job) view() Job {
	return j.Job
}

// Rejection explains why Enqueue did not queue a candidate.
type Rejection string

const (
	Accepted          Rejection = ""
	RejectNotMedia    Rejection = "not-media"
	RejectConverted   Rejection = "already-suffixed"
	RejectMissing     Rejection = "missing"
	RejectOutputFresh Rejection = "output-up-to-date"
	RejectDuplicate   Rejection = "duplicate"
	RejectSettled     Rejection = "settled"
	RejectSkip        Rejection = "compatible"
	RejectProbeRetry  Rejection = "probe-retry"
	RejectProbeFailed Rejection = "probe-failed"
)

// EnqueueResult reports what Enqueue did with a candidate.
type EnqueueResult struct {
	Job      Job
	Queued   bool
	Rejected Rejection
}

// Counts summarizes scheduler activity since start.
type Counts struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Snapshot lists active jobs and the most recent terminal outcomes.
type Snapshot struct {
	Queued  []Job  `json:"queued"`
	Running []Job  `json:"running"`
	Recent  []Job  `json:"recent"`
	Counts  Counts `json:"counts"`
}

package api

import (
	"time"

	"pengystream/internal/deps"
	"pengystream/internal/loadsense"
	"pengystream/internal/scheduler"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobItem describes a job in a transport-friendly format.
type JobItem struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Output     string  `json:"output"`
	Action     string  `json:"action"`
	Status     string  `json:"status"`
	Origin     string  `json:"origin"`
	PID        int     `json:"pid,omitempty"`
	EnqueuedAt string  `json:"enqueuedAt"`
	StartedAt  string  `json:"startedAt,omitempty"`
	FinishedAt string  `json:"finishedAt,omitempty"`
	Seconds    float64 `json:"seconds,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// JobCounts mirrors scheduler counts.
type JobCounts struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// JobsResponse is the payload of GET /api/jobs.
type JobsResponse struct {
	Queued  []JobItem `json:"queued"`
	Running []JobItem `json:"running"`
	Recent  []JobItem `json:"recent"`
	Counts  JobCounts `json:"counts"`
}

// LoadStatus is the most recent load reading used by admission.
type LoadStatus struct {
	CPUPercent   float64 `json:"cpuPercent"`
	CPUKnown     bool    `json:"cpuKnown"`
	GPUPercent   float64 `json:"gpuPercent"`
	GPUAvailable bool    `json:"gpuAvailable"`
	SampledAt    string  `json:"sampledAt,omitempty"`
}

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status        string             `json:"status"`
	PID           int                `json:"pid"`
	StartedAt     string             `json:"startedAt"`
	UptimeSeconds float64            `json:"uptimeSeconds"`
	MaxConcurrent int                `json:"maxConcurrent"`
	Counts        JobCounts          `json:"counts"`
	Load          LoadStatus         `json:"load"`
	Dependencies  []DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// FromJob converts a scheduler job into its transport form.
func FromJob(job scheduler.Job, now time.Time) JobItem {
	item := JobItem{
		ID:         job.ID,
		Source:     job.Source,
		Output:     job.Output,
		Action:     job.Action,
		Status:     job.Status.String(),
		Origin:     string(job.Origin),
		PID:        job.PID,
		EnqueuedAt: formatTime(job.EnqueuedAt),
		StartedAt:  formatTime(job.StartedAt),
		FinishedAt: formatTime(job.FinishedAt),
		Seconds:    job.Duration(now).Seconds(),
		Error:      job.Error,
	}
	return item
}

// FromSnapshot converts a scheduler snapshot into the /api/jobs payload.
func FromSnapshot(snap scheduler.Snapshot, now time.Time) JobsResponse {
	return JobsResponse{
		Queued:  fromJobs(snap.Queued, now),
		Running: fromJobs(snap.Running, now),
		Recent:  fromJobs(snap.Recent, now),
		Counts:  FromCounts(snap.Counts),
	}
}

// FromCounts converts scheduler counts.
func FromCounts(c scheduler.Counts) JobCounts {
	return JobCounts{Queued: c.Queued, Running: c.Running, Succeeded: c.Succeeded, Failed: c.Failed, Cancelled: c.Cancelled}
}

// FromLoad converts a load snapshot.
func FromLoad(s loadsense.Snapshot) LoadStatus {
	return LoadStatus{
		CPUPercent:   s.CPUPercent,
		CPUKnown:     s.CPUKnown,
		GPUPercent:   s.GPUPercent,
		GPUAvailable: s.GPUAvailable,
		SampledAt:    formatTime(s.TakenAt),
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus{
			Name:      status.Name,
			Command:   status.Command,
			Optional:  status.Optional,
			Available: status.Available,
			Detail:    status.Detail,
		})
	}
	return out
}

func fromJobs(jobs []scheduler.Job, now time.Time) []JobItem {
	items := make([]JobItem, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, FromJob(job, now))
	}
	return items
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

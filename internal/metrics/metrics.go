package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduler metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pengystream_jobs_total",
			Help: "Jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pengystream_jobs_queued",
			Help: "Jobs waiting for admission",
		},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pengystream_jobs_running",
			Help: "Jobs with a running transcode process",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pengystream_job_duration_seconds",
			Help:    "Wall time of finished transcode jobs",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200, 14400},
		},
		[]string{"action"},
	)

	EnqueueRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pengystream_enqueue_rejections_total",
			Help: "Candidates not queued, by reason",
		},
		[]string{"reason"},
	)
)

// Admission metrics
var (
	AdmissionDeferrals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pengystream_admission_deferrals_total",
			Help: "Admission attempts deferred, by reason",
		},
		[]string{"reason"},
	)

	LoadPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pengystream_load_percent",
			Help: "Most recent utilization sample",
		},
		[]string{"resource"}, // "cpu", "gpu"
	)
)

// Reconciliation metrics
var (
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pengystream_sweep_runs_total",
			Help: "Reconciliation passes, by kind",
		},
		[]string{"kind"}, // "cleanup", "rescan"
	)

	OrphansDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pengystream_orphans_deleted_total",
			Help: "Converted files removed because their source is gone",
		},
	)

	SweepSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pengystream_sweep_submissions_total",
			Help: "Candidates submitted by the missed-file rescan",
		},
	)

	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pengystream_sweep_errors_total",
			Help: "Filesystem errors tolerated during reconciliation",
		},
	)
)

// Intake metrics
var (
	WatchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pengystream_watch_events_total",
			Help: "Filesystem events received, by kind",
		},
		[]string{"kind"},
	)

	CandidatesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pengystream_candidates_emitted_total",
			Help: "Files that passed the stability check",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pengystream_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

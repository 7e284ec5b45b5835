package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"pengystream/internal/admission"
	"pengystream/internal/classify"
	"pengystream/internal/logging"
	"pengystream/internal/metrics"
	"pengystream/internal/policy"
	"pengystream/internal/transcode"
)

const recentOutcomes = 50

// ErrStopped is returned by Enqueue after shutdown has begun.
var ErrStopped = errors.New("scheduler stopped")

// Planner probes and classifies a source file.
type Planner interface {
	Plan(ctx context.Context, source string) (classify.Plan, error)
}

// Admitter gates job starts.
type Admitter interface {
	TryAdmit(ctx context.Context) admission.Decision
	Release()
}

// verdict remembers a settled outcome (compatible, failed job, or exhausted
// probe attempts) for a specific version of a source file.
type verdict struct {
	size    int64
	modTime time.Time
	reason  Rejection
}

// Scheduler owns queued and running jobs.
type Scheduler struct {
	policy  policy.Policy
	planner Planner
	admit   Admitter
	tool    transcode.Tool
	logger  *slog.Logger
	now     func() time.Time

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	active   map[string]*job
	pending  map[string]struct{}
	queue    []*job
	settled  map[string]verdict
	attempts map[string]int
	retries  map[string]*time.Timer
	recent   []Job
	counts   Counts
	stopped  bool

	wake chan struct{}
	jobs sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a scheduler. Run must be called to dispatch jobs.
func New(p policy.Policy, planner Planner, admit Admitter, tool transcode.Tool, logger *slog.Logger, opts ...Option) *Scheduler {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		policy:     p,
		planner:    planner,
		admit:      admit,
		tool:       tool,
		logger:     logging.NewComponentLogger(logger, "scheduler"),
		now:        time.Now,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		active:     make(map[string]*job),
		pending:    make(map[string]struct{}),
		settled:    make(map[string]verdict),
		attempts:   make(map[string]int),
		retries:    make(map[string]*time.Timer),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue evaluates a candidate and queues a job when it needs conversion.
// Rejections are reported in the result and logged; the error is reserved for
// a stopped scheduler or a cancelled context.
func (s *Scheduler) Enqueue(ctx context.Context, c Candidate) (EnqueueResult, error) {
	c.Path = filepath.Clean(c.Path)
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = s.now()
	}
	if c.Origin == "" {
		c.Origin = OriginManual
	}
	logger := s.logger.With(logging.String(logging.FieldSourcePath, c.Path), logging.String(logging.FieldOrigin, string(c.Origin)))

	if !s.policy.IsMedia(c.Path) {
		return s.reject(logger, RejectNotMedia, "not a recognized media file"), nil
	}
	if s.policy.IsConverted(c.Path) {
		return s.reject(logger, RejectConverted, "file carries the output suffix"), nil
	}
	info, err := os.Stat(c.Path)
	if err != nil || info.IsDir() {
		return s.reject(logger, RejectMissing, "source not found"), nil
	}
	c.Size = info.Size()
	c.ModTime = info.ModTime()
	if out, err := os.Stat(s.policy.OutputPath(c.Path)); err == nil && !out.ModTime().Before(c.ModTime) {
		return s.reject(logger, RejectOutputFresh, "converted output is newer than source"), nil
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return EnqueueResult{}, ErrStopped
	}
	if s.activeLocked(c.Path) {
		s.mu.Unlock()
		return s.reject(logger, RejectDuplicate, "job already queued or running"), nil
	}
	if v, ok := s.settled[c.Path]; ok {
		if v.size == c.Size && v.modTime.Equal(c.ModTime) {
			s.mu.Unlock()
			return s.reject(logger, RejectSettled, "unchanged since "+string(v.reason)), nil
		}
		delete(s.settled, c.Path)
	}
	s.pending[c.Path] = struct{}{}
	s.mu.Unlock()

	plan, err := s.planner.Plan(ctx, c.Path)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, c.Path)

	if err != nil {
		if errors.Is(err, classify.ErrProbe) {
			return s.probeFailedLocked(logger, c, err), nil
		}
		return EnqueueResult{}, err
	}
	delete(s.attempts, c.Path)

	if s.stopped {
		return EnqueueResult{}, ErrStopped
	}
	if plan.Action == classify.Skip {
		s.settled[c.Path] = verdict{size: c.Size, modTime: c.ModTime, reason: RejectSkip}
		return s.reject(logger, RejectSkip, "streams already compatible"), nil
	}

	j := &job{
		Job: Job{
			ID:         uuid.NewString(),
			Source:     c.Path,
			Output:     plan.Output,
			Action:     plan.Action.String(),
			Status:     StatusQueued,
			Origin:     c.Origin,
			EnqueuedAt: s.now(),
			Plan:       plan,
		},
		candidate: c,
	}
	s.active[c.Path] = j
	s.queue = append(s.queue, j)
	s.publishLocked()

	logger.Info("job queued",
		logging.String(logging.FieldJobID, j.ID),
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String("action", j.Action),
		logging.String("output", j.Output),
		logging.Int("queue_depth", len(s.queue)),
	)
	s.signal()
	return EnqueueResult{Job: j.view(), Queued: true}, nil
}

func (s *Scheduler) reject(logger *slog.Logger, reason Rejection, detail string) EnqueueResult {
	metrics.EnqueueRejections.WithLabelValues(string(reason)).Inc()
	level := slog.LevelDebug
	if reason == RejectSkip {
		level = slog.LevelInfo
	}
	attrs := append(logging.DecisionAttrs("enqueue", "rejected", string(reason)), logging.String("detail", detail))
	logger.Log(context.Background(), level, "candidate not queued", logging.Args(attrs...)...)
	return EnqueueResult{Rejected: reason}
}

func (s *Scheduler) probeFailedLocked(logger *slog.Logger, c Candidate, err error) EnqueueResult {
	attempt := s.attempts[c.Path] + 1
	if s.stopped {
		delete(s.attempts, c.Path)
		return EnqueueResult{Rejected: RejectProbeFailed}
	}
	if attempt >= s.policy.ProbeMaxAttempts {
		delete(s.attempts, c.Path)
		s.settled[c.Path] = verdict{size: c.Size, modTime: c.ModTime, reason: RejectProbeFailed}
		logging.WarnWithContext(logger, "probe failed; giving up on this version of the file", "probe_failed",
			logging.Error(err),
			logging.Int("attempts", attempt),
			logging.String(logging.FieldErrorHint, "check that the file is complete and readable by ffprobe"),
			logging.String(logging.FieldImpact, "file is not converted until it changes"),
		)
		metrics.EnqueueRejections.WithLabelValues(string(RejectProbeFailed)).Inc()
		return EnqueueResult{Rejected: RejectProbeFailed}
	}
	s.attempts[c.Path] = attempt
	if old, ok := s.retries[c.Path]; ok {
		old.Stop()
	}
	retry := c
	s.retries[c.Path] = time.AfterFunc(s.policy.ProbeRetryDelay, func() {
		s.mu.Lock()
		delete(s.retries, retry.Path)
		s.mu.Unlock()
		if _, err := s.Enqueue(s.baseCtx, retry); err != nil && !errors.Is(err, ErrStopped) && !errors.Is(err, context.Canceled) {
			logger.Debug("probe retry enqueue failed", logging.Error(err))
		}
	})
	logger.Info("probe failed; will retry",
		logging.Error(err),
		logging.String(logging.FieldEventType, "probe_retry_scheduled"),
		logging.Int("attempt", attempt),
		logging.Duration("retry_in", s.policy.ProbeRetryDelay),
	)
	metrics.EnqueueRejections.WithLabelValues(string(RejectProbeRetry)).Inc()
	return EnqueueResult{Rejected: RejectProbeRetry}
}

func (s *Scheduler) activeLocked(path string) bool {
	if _, ok := s.active[path]; ok {
		return true
	}
	_, ok := s.pending[path]
	return ok
}

// IsActive reports whether path has a job being evaluated, queued or running.
func (s *Scheduler) IsActive(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(filepath.Clean(path))
}

// Known reports whether the scheduler already accounts for this version of
// the file: active, awaiting a probe retry, or settled with the same size and
// modification time.
func (s *Scheduler) Known(c Candidate) bool {
	path := filepath.Clean(c.Path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked(path) {
		return true
	}
	if _, ok := s.retries[path]; ok {
		return true
	}
	v, ok := s.settled[path]
	return ok && v.size == c.Size && v.modTime.Equal(c.ModTime)
}

// Snapshot returns copies of queued and running jobs plus recent outcomes,
// newest first.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Counts: s.countsLocked()}
	for _, j := range s.queue {
		snap.Queued = append(snap.Queued, j.view())
	}
	for _, j := range s.active {
		if j.Status == StatusRunning {
			snap.Running = append(snap.Running, j.view())
		}
	}
	sortByStart(snap.Running)
	snap.Recent = make([]Job, 0, len(s.recent))
	for i := len(s.recent) - 1; i >= 0; i-- {
		snap.Recent = append(snap.Recent, s.recent[i])
	}
	return snap
}

// Counts returns current and cumulative job counts.
func (s *Scheduler) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked()
}

func (s *Scheduler) countsLocked() Counts {
	counts := s.counts
	counts.Queued = len(s.queue)
	counts.Running = len(s.active) - len(s.queue)
	return counts
}

func (s *Scheduler) publishLocked() {
	counts := s.countsLocked()
	metrics.JobsQueued.Set(float64(counts.Queued))
	metrics.JobsRunning.Set(float64(counts.Running))
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) recordLocked(j *job) {
	switch j.Status {
	case StatusSucceeded:
		s.counts.Succeeded++
	case StatusFailed:
		s.counts.Failed++
	case StatusCancelled:
		s.counts.Cancelled++
	}
	metrics.JobsTotal.WithLabelValues(j.Status.String()).Inc()
	s.recent = append(s.recent, j.view())
	if over := len(s.recent) - recentOutcomes; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

func sortByStart(jobs []Job) {
	for i := 1; i < len(jobs); i++ {
		for k := i; k > 0 && jobs[k].StartedAt.Before(jobs[k-1].StartedAt); k-- {
			jobs[k], jobs[k-1] = jobs[k-1], jobs[k]
		}
	}
}

func (s *Scheduler) String() string {
	counts := s.Counts()
	return fmt.Sprintf("scheduler(queued=%d running=%d)", counts.Queued, counts.Running)
}

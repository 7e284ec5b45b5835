package reconcile

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pengystream/internal/logging"
	"pengystream/internal/metrics"
	"pengystream/internal/policy"
	"pengystream/internal/scheduler"
)

// Scheduler is the part of the job scheduler the sweep consults.
type Scheduler interface {
	IsActive(path string) bool
	Known(c scheduler.Candidate) bool
	Enqueue(ctx context.Context, c scheduler.Candidate) (scheduler.EnqueueResult, error)
}

// Result summarizes one sweep. In dry-run mode Deleted and Submitted list what
// would have been deleted or submitted.
type Result struct {
	Deleted   []string
	Submitted []string
	Errors    []SweepError
	DryRun    bool
}

// SweepError pairs a path with the error encountered while handling it.
type SweepError struct {
	Path string
	Err  error
}

func (r *Result) merge(other Result) {
	r.Deleted = append(r.Deleted, other.Deleted...)
	r.Submitted = append(r.Submitted, other.Submitted...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Sweeper runs orphan cleanup and missed-file rescans over the watch roots.
type Sweeper struct {
	roots  []string
	policy policy.Policy
	sched  Scheduler
	logger *slog.Logger
	now    func() time.Time
	dryRun bool
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithDryRun reports deletions and submissions without performing them.
func WithDryRun(enabled bool) Option {
	return func(s *Sweeper) { s.dryRun = enabled }
}

// WithClock overrides the time source used for the stability window.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Sweeper. sched may be nil for report-only sweeps, in
// which case no job is treated as active.
func New(roots []string, p policy.Policy, sched Scheduler, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		roots:  append([]string(nil), roots...),
		policy: p,
		sched:  sched,
		logger: logging.NewComponentLogger(logger, "reconcile"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs CleanOrphans followed by Rescan.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	result := s.CleanOrphans(ctx)
	result.merge(s.Rescan(ctx))
	return result
}

// Run performs a full sweep immediately, then rescans every PollInterval and
// cleans orphans every CleanupInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.Sweep(ctx)

	rescan := time.NewTicker(s.policy.PollInterval)
	defer rescan.Stop()
	cleanup := time.NewTicker(s.policy.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rescan.C:
			s.Rescan(ctx)
		case <-cleanup.C:
			s.CleanOrphans(ctx)
		}
	}
}

// CleanOrphans deletes outputs whose source is missing and partial outputs
// with no running job. Paths whose source has an active job are never
// touched. Filesystem errors are recorded and the walk continues.
func (s *Sweeper) CleanOrphans(ctx context.Context) Result {
	result := Result{DryRun: s.dryRun}
	s.walk(ctx, &result, func(path string, _ fs.FileInfo) {
		if !s.policy.IsMedia(path) || !s.policy.IsConverted(path) {
			return
		}
		source, ok := s.policy.SourcePath(path)
		if !ok || s.active(source) {
			return
		}
		partial := s.policy.IsPartial(path)
		if !partial && exists(source) {
			return
		}
		reason := "source missing"
		if partial {
			reason = "stale partial output"
		}
		s.remove(&result, path, source, reason)
	})

	metrics.SweepRunsTotal.WithLabelValues("cleanup").Inc()
	s.logger.Info("orphan cleanup finished",
		logging.String(logging.FieldEventType, "orphan_cleanup"),
		logging.Int("deleted", len(result.Deleted)),
		logging.Int("errors", len(result.Errors)),
		logging.Bool("dry_run", s.dryRun),
	)
	return result
}

func (s *Sweeper) remove(result *Result, path, source, reason string) {
	logger := s.logger.With(
		logging.String("path", path),
		logging.String(logging.FieldSourcePath, source),
		logging.String("reason", reason),
	)
	if s.dryRun {
		result.Deleted = append(result.Deleted, path)
		logger.Info("would delete orphaned output", logging.String(logging.FieldEventType, "orphan_dry_run"))
		return
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		result.Errors = append(result.Errors, SweepError{Path: path, Err: err})
		metrics.SweepErrors.Inc()
		logging.WarnWithContext(logger, "failed to delete orphaned output", "orphan_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check watch directory permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return
	}
	result.Deleted = append(result.Deleted, path)
	metrics.OrphansDeleted.Inc()
	logger.Info("deleted orphaned output", logging.String(logging.FieldEventType, "orphan_deleted"))
}

// Rescan submits source files that have no up-to-date output, are not known
// to the scheduler and have not been modified within the stability window.
func (s *Sweeper) Rescan(ctx context.Context) Result {
	result := Result{DryRun: s.dryRun}
	cutoff := s.now().Add(-s.policy.StabilityInterval)
	s.walk(ctx, &result, func(path string, info fs.FileInfo) {
		if !s.policy.IsMedia(path) || s.policy.IsConverted(path) {
			return
		}
		if out, err := os.Stat(s.policy.OutputPath(path)); err == nil && !out.ModTime().Before(info.ModTime()) {
			return
		}
		if info.ModTime().After(cutoff) || info.Size() == 0 {
			return
		}
		candidate := scheduler.Candidate{
			Path:         path,
			Size:         info.Size(),
			ModTime:      info.ModTime(),
			DiscoveredAt: s.now(),
			Origin:       scheduler.OriginSweep,
		}
		if s.sched != nil && s.sched.Known(candidate) {
			return
		}
		if s.dryRun || s.sched == nil {
			result.Submitted = append(result.Submitted, path)
			return
		}
		res, err := s.sched.Enqueue(ctx, candidate)
		if err != nil {
			if !errors.Is(err, scheduler.ErrStopped) && !errors.Is(err, context.Canceled) {
				result.Errors = append(result.Errors, SweepError{Path: path, Err: err})
				metrics.SweepErrors.Inc()
			}
			return
		}
		if res.Queued {
			result.Submitted = append(result.Submitted, path)
			metrics.SweepSubmissions.Inc()
		}
	})

	metrics.SweepRunsTotal.WithLabelValues("rescan").Inc()
	level := slog.LevelDebug
	if len(result.Submitted) > 0 || len(result.Errors) > 0 {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "rescan finished",
		logging.String(logging.FieldEventType, "rescan"),
		logging.Int("submitted", len(result.Submitted)),
		logging.Int("errors", len(result.Errors)),
		logging.Bool("dry_run", s.dryRun),
	)
	return result
}

func (s *Sweeper) walk(ctx context.Context, result *Result, visit func(path string, info fs.FileInfo)) {
	for _, root := range s.roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				result.Errors = append(result.Errors, SweepError{Path: path, Err: err})
				metrics.SweepErrors.Inc()
				s.logger.Warn("sweep could not read path",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "sweep_read_failed"),
					logging.String(logging.FieldErrorHint, "check watch directory permissions"),
					logging.String(logging.FieldImpact, "files under this path are not reconciled"),
				)
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			visit(path, info)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			result.Errors = append(result.Errors, SweepError{Path: root, Err: err})
		}
	}
}

func (s *Sweeper) active(source string) bool {
	return s.sched != nil && s.sched.IsActive(source)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

package intake

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pengystream/internal/logging"
	"pengystream/internal/metrics"
	"pengystream/internal/policy"
	"pengystream/internal/scheduler"
)

// A file that stays empty is given up on after this many stability checks.
const maxEmptyChecks = 120

// Submitter receives stable candidates.
type Submitter interface {
	Enqueue(ctx context.Context, c scheduler.Candidate) (scheduler.EnqueueResult, error)
}

type pendingFile struct {
	generation int
	observed   bool
	size       int64
	modTime    time.Time
	empty      int
	firstSeen  time.Time
}

type check struct {
	path       string
	generation int
}

// Debouncer waits for event bursts to settle and files to stop changing
// before submitting them. All pending state is owned by the Run goroutine;
// timers only post checks back to it.
type Debouncer struct {
	policy policy.Policy
	submit Submitter
	logger *slog.Logger
}

// NewDebouncer constructs a debouncer that submits to s.
func NewDebouncer(p policy.Policy, s Submitter, logger *slog.Logger) *Debouncer {
	return &Debouncer{
		policy: p,
		submit: s,
		logger: logging.NewComponentLogger(logger, "intake"),
	}
}

// Run consumes events until ctx is cancelled or events is closed.
func (d *Debouncer) Run(ctx context.Context, events <-chan Event) error {
	pending := make(map[string]*pendingFile)
	checks := make(chan check, eventBuffer)
	var submissions sync.WaitGroup
	defer submissions.Wait()
	done := make(chan struct{})
	defer close(done)

	schedule := func(path string, generation int, after time.Duration) {
		time.AfterFunc(after, func() {
			select {
			case checks <- check{path: path, generation: generation}:
			case <-done:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Path)
			if !d.accept(path) {
				continue
			}
			entry, exists := pending[path]
			if !exists {
				entry = &pendingFile{firstSeen: event.At}
				if entry.firstSeen.IsZero() {
					entry.firstSeen = time.Now()
				}
				pending[path] = entry
			}
			entry.generation++
			entry.observed = false
			schedule(path, entry.generation, d.policy.DebounceWindow)
		case c := <-checks:
			entry, ok := pending[c.path]
			if !ok || entry.generation != c.generation {
				continue
			}
			info, err := os.Stat(c.path)
			if err != nil || info.IsDir() {
				delete(pending, c.path)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					d.logger.Debug("dropping pending file", logging.String(logging.FieldSourcePath, c.path), logging.Error(err))
				}
				continue
			}
			if info.Size() == 0 {
				entry.empty++
				if entry.empty >= maxEmptyChecks {
					delete(pending, c.path)
					d.logger.Debug("file stayed empty; dropping", logging.String(logging.FieldSourcePath, c.path))
					continue
				}
				entry.observed = false
				schedule(c.path, entry.generation, d.policy.StabilityInterval)
				continue
			}
			if entry.observed && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
				delete(pending, c.path)
				candidate := scheduler.Candidate{
					Path:         c.path,
					Size:         info.Size(),
					ModTime:      info.ModTime(),
					DiscoveredAt: entry.firstSeen,
					Origin:       scheduler.OriginEvent,
				}
				submissions.Add(1)
				go func() {
					defer submissions.Done()
					d.emit(ctx, candidate)
				}()
				continue
			}
			entry.observed = true
			entry.size = info.Size()
			entry.modTime = info.ModTime()
			schedule(c.path, entry.generation, d.policy.StabilityInterval)
		}
	}
}

func (d *Debouncer) accept(path string) bool {
	return d.policy.IsMedia(path) && !d.policy.IsConverted(path)
}

func (d *Debouncer) emit(ctx context.Context, c scheduler.Candidate) {
	metrics.CandidatesEmitted.Inc()
	d.logger.Debug("file stable; submitting",
		logging.String(logging.FieldSourcePath, c.Path),
		logging.Int64("size_bytes", c.Size),
		logging.Duration("settled_after", time.Since(c.DiscoveredAt)),
	)
	if _, err := d.submit.Enqueue(ctx, c); err != nil && !errors.Is(err, scheduler.ErrStopped) && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(d.logger, "failed to submit stable file", "intake_submit_failed",
			logging.String(logging.FieldSourcePath, c.Path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file is retried by the next rescan"),
		)
	}
}

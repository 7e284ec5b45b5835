package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"pengystream/internal/logging"
	"pengystream/internal/metrics"
	"pengystream/internal/transcode"
)

const (
	maxTerminateGrace = 10 * time.Second
	verdictFailed     = Rejection("failed")
)

// Run dispatches queued jobs in FIFO order until ctx is cancelled, then
// cancels queued work, terminates running transforms and waits for them up
// to the shutdown timeout.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_started"),
		logging.Int("max_concurrent", s.policy.MaxConcurrent),
	)
	for {
		deferred := s.dispatchReady(ctx)

		var retry *time.Timer
		var retryC <-chan time.Time
		if deferred {
			retry = time.NewTimer(s.policy.AdmissionRetry)
			retryC = retry.C
		}
		select {
		case <-ctx.Done():
			if retry != nil {
				retry.Stop()
			}
			return s.shutdown()
		case <-s.wake:
		case <-retryC:
		}
		if retry != nil {
			retry.Stop()
		}
	}
}

// dispatchReady starts queued jobs while admission allows. It reports true
// when the queue head was deferred and a timed retry is needed.
func (s *Scheduler) dispatchReady(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		s.mu.Lock()
		if s.stopped || len(s.queue) == 0 {
			s.mu.Unlock()
			return false
		}
		head := s.queue[0]
		s.mu.Unlock()

		decision := s.admit.TryAdmit(ctx)
		if !decision.Admitted {
			return true
		}

		s.mu.Lock()
		if s.stopped || len(s.queue) == 0 || s.queue[0] != head {
			s.mu.Unlock()
			s.admit.Release()
			continue
		}
		s.queue[0] = nil
		s.queue = s.queue[1:]
		head.Status = StatusRunning
		head.StartedAt = s.now()
		s.publishLocked()
		s.mu.Unlock()

		s.jobs.Add(1)
		go s.execute(head)
	}
}

func (s *Scheduler) execute(j *job) {
	defer s.jobs.Done()
	ctx := logging.WithJob(s.baseCtx, j.ID, j.Source)
	logger := logging.WithContext(ctx, s.logger)

	if err := os.Remove(j.Plan.Partial); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("stale partial not removed", logging.Error(err))
	}

	proc, err := s.tool.Start(ctx, j.Plan)
	if err != nil {
		s.complete(logger, j, StatusFailed, err)
		return
	}
	s.mu.Lock()
	j.PID = proc.PID()
	s.mu.Unlock()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("action", j.Action),
		logging.Int("pid", j.PID),
		logging.Duration("queued_for", j.StartedAt.Sub(j.EnqueuedAt)),
	)

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	select {
	case err = <-done:
	case <-s.baseCtx.Done():
		select {
		case err = <-done:
			// Exited on its own before shutdown reached it.
			if err != nil {
				s.complete(logger, j, StatusFailed, err)
			} else {
				s.complete(logger, j, StatusSucceeded, nil)
			}
			return
		default:
		}
		if terr := proc.Terminate(s.terminateGrace()); terr != nil {
			logging.WarnWithContext(logger, "failed to terminate transform", "job_terminate_failed",
				logging.Error(terr),
				logging.Int("pid", j.PID),
				logging.String(logging.FieldErrorHint, "check for a leftover ffmpeg process"),
				logging.String(logging.FieldImpact, "transform may keep running after shutdown"),
			)
		}
		// A terminated transform never publishes, whatever its exit status.
		<-done
		s.complete(logger, j, StatusCancelled, context.Canceled)
		return
	}
	if err != nil {
		s.complete(logger, j, StatusFailed, err)
		return
	}
	s.complete(logger, j, StatusSucceeded, nil)
}

func (s *Scheduler) terminateGrace() time.Duration {
	if s.policy.ShutdownTimeout > 0 && s.policy.ShutdownTimeout < maxTerminateGrace {
		return s.policy.ShutdownTimeout
	}
	return maxTerminateGrace
}

// complete publishes the output on success and removes the partial otherwise.
func (s *Scheduler) complete(logger *slog.Logger, j *job, status Status, cause error) {
	if status == StatusSucceeded {
		if err := os.Rename(j.Plan.Partial, j.Plan.Output); err != nil {
			status = StatusFailed
			cause = fmt.Errorf("publish output: %w", err)
		}
	}
	if status != StatusSucceeded {
		if err := os.Remove(j.Plan.Partial); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "failed to remove partial output", "partial_cleanup_failed",
				logging.Error(err),
				logging.String("partial", j.Plan.Partial),
				logging.String(logging.FieldErrorHint, "the reconciliation sweep removes it on the next cleanup"),
			)
		}
	}

	s.mu.Lock()
	j.Status = status
	j.FinishedAt = s.now()
	if cause != nil {
		j.Error = cause.Error()
	}
	if status == StatusFailed {
		s.settled[j.Source] = verdict{size: j.candidate.Size, modTime: j.candidate.ModTime, reason: verdictFailed}
	}
	delete(s.active, j.Source)
	s.recordLocked(j)
	s.publishLocked()
	elapsed := j.FinishedAt.Sub(j.StartedAt)
	s.mu.Unlock()

	metrics.JobDuration.WithLabelValues(j.Action).Observe(elapsed.Seconds())
	s.admit.Release()
	s.signal()

	attrs := []logging.Attr{
		logging.String("status", status.String()),
		logging.Duration("elapsed", elapsed),
	}
	switch status {
	case StatusSucceeded:
		logger.Info("job succeeded", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "job_succeeded"),
			logging.String("output", j.Plan.Output))...)...)
	case StatusCancelled:
		logger.Info("job cancelled", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "job_cancelled"))...)...)
	default:
		attrs = append(attrs, logging.Error(cause))
		var exitErr *transcode.ExitError
		if errors.As(cause, &exitErr) {
			attrs = append(attrs, logging.Int("exit_code", exitErr.Code))
		}
		logging.ErrorWithContext(logger, "job failed", "job_failed", append(attrs,
			logging.String(logging.FieldErrorHint, "inspect the ffmpeg stderr tail; the source is retried once it changes"),
		)...)
	}
}

// shutdown stops intake, cancels queued jobs and waits for running ones.
func (s *Scheduler) shutdown() error {
	now := s.now()
	s.mu.Lock()
	s.stopped = true
	for _, j := range s.queue {
		j.Status = StatusCancelled
		j.FinishedAt = now
		j.Error = "daemon shutting down"
		delete(s.active, j.Source)
		s.recordLocked(j)
	}
	cancelled := len(s.queue)
	s.queue = nil
	for path, timer := range s.retries {
		timer.Stop()
		delete(s.retries, path)
	}
	running := len(s.active)
	s.publishLocked()
	s.mu.Unlock()

	s.logger.Info("scheduler stopping",
		logging.String(logging.FieldEventType, "scheduler_stopping"),
		logging.Int("queued_cancelled", cancelled),
		logging.Int("running", running),
	)
	s.cancelBase()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	timer := time.NewTimer(s.policy.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
		return nil
	case <-timer.C:
		return fmt.Errorf("scheduler shutdown: %d jobs still running after %s", running, s.policy.ShutdownTimeout)
	}
}

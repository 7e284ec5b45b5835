package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pengystream/internal/loadsense"
	"pengystream/internal/logging"
	"pengystream/internal/metrics"
	"pengystream/internal/policy"
)

// Reason explains a deferral.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonCapacityFull Reason = "capacity-full"
	ReasonCPUHigh      Reason = "cpu-high"
	ReasonGPUHigh      Reason = "gpu-high"
)

// Decision is the outcome of TryAdmit.
type Decision struct {
	Admitted bool
	Reason   Reason
	Snapshot loadsense.Snapshot
	Running  int
}

func (d Decision) String() string {
	if d.Admitted {
		return "admitted"
	}
	return fmt.Sprintf("deferred (%s)", d.Reason)
}

// Controller decides whether a new job may start.
type Controller struct {
	policy  policy.Policy
	sampler loadsense.Sampler
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running int

	// sampleMu serializes sensor queries; snapshot is only written under it.
	sampleMu sync.Mutex
	snapshot loadsense.Snapshot
	sampled  bool

	sensorWarn rate.Sometimes
	deferInfo  rate.Sometimes
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the time source used for snapshot freshness.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a controller. A nil sampler disables load gating.
func New(p policy.Policy, sampler loadsense.Sampler, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		policy:     p,
		sampler:    sampler,
		logger:     logging.NewComponentLogger(logger, "admission"),
		now:        time.Now,
		sensorWarn: rate.Sometimes{First: 1, Interval: 5 * time.Minute},
		deferInfo:  rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TryAdmit reserves a slot when capacity and load allow. It blocks for at
// most one sensor sample.
func (c *Controller) TryAdmit(ctx context.Context) Decision {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running >= c.policy.MaxConcurrent {
		return c.deferred(Decision{Reason: ReasonCapacityFull, Running: running, Snapshot: c.Snapshot()})
	}

	snap := c.currentSnapshot(ctx)
	if reason := c.loadReason(snap); reason != ReasonNone {
		return c.deferred(Decision{Reason: reason, Running: running, Snapshot: snap})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running >= c.policy.MaxConcurrent {
		return c.deferred(Decision{Reason: ReasonCapacityFull, Running: c.running, Snapshot: snap})
	}
	c.running++
	return Decision{Admitted: true, Running: c.running, Snapshot: snap}
}

// Release frees a slot reserved by TryAdmit.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running > 0 {
		c.running--
	}
}

// Running returns the number of reserved slots.
func (c *Controller) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Snapshot returns the most recent load reading without sampling.
func (c *Controller) Snapshot() loadsense.Snapshot {
	c.sampleMu.Lock()
	defer c.sampleMu.Unlock()
	return c.snapshot
}

func (c *Controller) loadReason(snap loadsense.Snapshot) Reason {
	if snap.CPUKnown && snap.CPUPercent >= c.policy.CPUThreshold {
		return ReasonCPUHigh
	}
	if snap.GPUAvailable && snap.GPUPercent >= c.policy.GPUThreshold {
		return ReasonGPUHigh
	}
	return ReasonNone
}

func (c *Controller) currentSnapshot(ctx context.Context) loadsense.Snapshot {
	if c.sampler == nil {
		return loadsense.Snapshot{}
	}
	c.sampleMu.Lock()
	defer c.sampleMu.Unlock()

	now := c.now()
	if c.sampled && c.snapshot.Age(now) < c.policy.LoadRecheck {
		return c.snapshot
	}

	snap, err := c.sampler.Sample(ctx)
	if snap.TakenAt.IsZero() {
		snap.TakenAt = now
	}
	if err != nil {
		c.sensorWarn.Do(func() {
			logging.WarnWithContext(c.logger, "load sensor failed; affected dimension treated as idle", "load_sensor_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check /proc access and nvidia-smi"),
				logging.String(logging.FieldImpact, "jobs may start while the host is busy"),
			)
		})
	}
	c.snapshot = snap
	c.sampled = true

	if snap.CPUKnown {
		metrics.LoadPercent.WithLabelValues("cpu").Set(snap.CPUPercent)
	}
	if snap.GPUAvailable {
		metrics.LoadPercent.WithLabelValues("gpu").Set(snap.GPUPercent)
	}
	return snap
}

func (c *Controller) deferred(d Decision) Decision {
	metrics.AdmissionDeferrals.WithLabelValues(string(d.Reason)).Inc()
	attrs := append(logging.DecisionAttrs("admission", "deferred", string(d.Reason)),
		logging.Int("running", d.Running),
		logging.Int("max_concurrent", c.policy.MaxConcurrent),
		logging.Float64("cpu_percent", d.Snapshot.CPUPercent),
		logging.Float64("gpu_percent", d.Snapshot.GPUPercent),
		logging.Bool("gpu_available", d.Snapshot.GPUAvailable),
	)
	c.logger.Debug("admission deferred", logging.Args(attrs...)...)
	c.deferInfo.Do(func() {
		c.logger.Info("new jobs waiting for admission", logging.Args(attrs...)...)
	})
	return d
}

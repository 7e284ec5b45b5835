package loadsense

import (
	"context"
	"errors"
	"time"
)

// Snapshot is a point-in-time utilization reading. A dimension that could not
// be measured has its Known/Available flag cleared.
type Snapshot struct {
	CPUPercent   float64
	CPUKnown     bool
	GPUPercent   float64
	GPUAvailable bool
	TakenAt      time.Time
}

// Age reports how old the snapshot is relative to now.
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.TakenAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.TakenAt)
}

// Sampler produces load snapshots. A returned error describes the dimensions
// that failed; the snapshot is still usable for the others.
type Sampler interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// CPUSampler reports whole-host CPU utilization in percent.
type CPUSampler interface {
	CPUPercent(ctx context.Context) (float64, error)
}

// GPUSampler reports GPU utilization in percent. ok is false when no
// supported GPU is present.
type GPUSampler interface {
	GPUPercent(ctx context.Context) (percent float64, ok bool, err error)
}

// Combined joins a CPU and an optional GPU sampler.
type Combined struct {
	CPU CPUSampler
	GPU GPUSampler
	Now func() time.Time
}

// Sample implements Sampler.
func (c Combined) Sample(ctx context.Context) (Snapshot, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	var snap Snapshot
	var errs []error
	if c.CPU != nil {
		cpu, err := c.CPU.CPUPercent(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			snap.CPUPercent = cpu
			snap.CPUKnown = true
		}
	}
	if c.GPU != nil {
		gpu, ok, err := c.GPU.GPUPercent(ctx)
		if err != nil {
			errs = append(errs, err)
		} else if ok {
			snap.GPUPercent = gpu
			snap.GPUAvailable = true
		}
	}
	snap.TakenAt = now()
	return snap, errors.Join(errs...)
}

package loadsense

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// ProcSampler measures CPU utilization as the busy share of /proc/stat time
// between two readings. Consecutive calls reuse the previous reading as the
// baseline unless it is older than twice Interval.
type ProcSampler struct {
	// Interval separates the two readings taken for a fresh sample.
	Interval time.Duration

	mu     sync.Mutex
	read   func() (procfs.CPUStat, error)
	now    func() time.Time
	prev   procfs.CPUStat
	prevAt time.Time
	last   float64
	init   bool
}

// NewProcSampler opens the default /proc mount.
func NewProcSampler(interval time.Duration) (*ProcSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return newProcSampler(interval, func() (procfs.CPUStat, error) {
		stat, err := fs.Stat()
		if err != nil {
			return procfs.CPUStat{}, fmt.Errorf("read /proc/stat: %w", err)
		}
		return stat.CPUTotal, nil
	}), nil
}

func newProcSampler(interval time.Duration, read func() (procfs.CPUStat, error)) *ProcSampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &ProcSampler{Interval: interval, read: read, now: time.Now}
}

// CPUPercent implements CPUSampler.
func (s *ProcSampler) CPUPercent(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.init || s.now().Sub(s.prevAt) > 2*s.Interval {
		first, err := s.read()
		if err != nil {
			return 0, err
		}
		timer := time.NewTimer(s.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
		s.prev = first
		s.init = true
	}

	current, err := s.read()
	if err != nil {
		return 0, err
	}
	if percent, ok := busyPercent(s.prev, current); ok {
		s.last = percent
		s.prev = current
		s.prevAt = s.now()
	}
	return s.last, nil
}

// busyPercent returns the share of non-idle time between two readings. ok is
// false when no time elapsed.
func busyPercent(prev, cur procfs.CPUStat) (float64, bool) {
	idle := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	total := cpuTotal(cur) - cpuTotal(prev)
	if total <= 0 {
		return 0, false
	}
	busy := total - idle
	if busy < 0 {
		busy = 0
	}
	return busy / total * 100, true
}

func cpuTotal(s procfs.CPUStat) float64 {
	return s.User + s.Nice + s.System + s.Idle + s.Iowait + s.IRQ + s.SoftIRQ + s.Steal
}

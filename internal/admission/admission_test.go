package admission_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pengystream/internal/admission"
	"pengystream/internal/loadsense"
	"pengystream/internal/logging"
	"pengystream/internal/policy"
)

type scriptedSampler struct {
	mu    sync.Mutex
	snap  loadsense.Snapshot
	err   error
	calls int
}

func (s *scriptedSampler) set(cpu float64, gpu float64, gpuAvailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = loadsense.Snapshot{CPUPercent: cpu, CPUKnown: true, GPUPercent: gpu, GPUAvailable: gpuAvailable}
}

func (s *scriptedSampler) Sample(context.Context) (loadsense.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.snap, s.err
}

func testPolicy(maxConcurrent int) policy.Policy {
	return policy.Policy{MaxConcurrent: maxConcurrent, CPUThreshold: 80, GPUThreshold: 80}
}

func TestCapacityBound(t *testing.T) {
	sampler := &scriptedSampler{}
	sampler.set(10, 0, false)
	c := admission.New(testPolicy(2), sampler, logging.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d := c.TryAdmit(ctx); !d.Admitted {
			t.Fatalf("admission %d unexpectedly deferred: %s", i, d)
		}
	}
	d := c.TryAdmit(ctx)
	if d.Admitted || d.Reason != admission.ReasonCapacityFull {
		t.Fatalf("expected capacity-full, got %s", d)
	}
	c.Release()
	if d := c.TryAdmit(ctx); !d.Admitted {
		t.Fatalf("expected admission after release, got %s", d)
	}
	if c.Running() != 2 {
		t.Fatalf("expected 2 running, got %d", c.Running())
	}
}

func TestConcurrentAdmissionNeverExceedsLimit(t *testing.T) {
	const limit = 3
	sampler := &scriptedSampler{}
	sampler.set(5, 5, true)
	c := admission.New(testPolicy(limit), sampler, logging.NewNop())
	ctx := context.Background()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	rng := rand.New(rand.NewSource(42))
	delays := make([]time.Duration, 64)
	for i := range delays {
		delays[i] = time.Duration(rng.Intn(300)) * time.Microsecond
	}
	for _, delay := range delays {
		wg.Add(1)
		go func(delay time.Duration) {
			defer wg.Done()
			time.Sleep(delay)
			for {
				d := c.TryAdmit(ctx)
				if !d.Admitted {
					time.Sleep(50 * time.Microsecond)
					continue
				}
				now := active.Add(1)
				for {
					old := peak.Load()
					if now <= old || peak.CompareAndSwap(old, now) {
						break
					}
				}
				time.Sleep(delay / 2)
				active.Add(-1)
				c.Release()
				return
			}
		}(delay)
	}
	wg.Wait()

	if peak.Load() > limit {
		t.Fatalf("running count exceeded limit: peak=%d limit=%d", peak.Load(), limit)
	}
	if c.Running() != 0 {
		t.Fatalf("expected all slots released, got %d", c.Running())
	}
}

func TestCPUDeferralRecoversOnNextSample(t *testing.T) {
	sampler := &scriptedSampler{}
	sampler.set(95, 0, false)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := testPolicy(2)
	p.LoadRecheck = 5 * time.Second
	c := admission.New(p, sampler, logging.NewNop(), admission.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	d := c.TryAdmit(ctx)
	if d.Admitted || d.Reason != admission.ReasonCPUHigh {
		t.Fatalf("expected cpu-high deferral, got %s", d)
	}

	sampler.set(40, 0, false)
	// Cached snapshot is still fresh.
	if d := c.TryAdmit(ctx); d.Admitted {
		t.Fatal("expected cached high reading to defer")
	}
	if sampler.calls != 1 {
		t.Fatalf("expected one sensor call while fresh, got %d", sampler.calls)
	}

	now = now.Add(6 * time.Second)
	if d := c.TryAdmit(ctx); !d.Admitted {
		t.Fatalf("expected admission once load dropped, got %s", d)
	}
}

func TestGPUThresholdAndUnavailableGPU(t *testing.T) {
	sampler := &scriptedSampler{}
	sampler.set(10, 99, true)
	c := admission.New(testPolicy(1), sampler, logging.NewNop())
	if d := c.TryAdmit(context.Background()); d.Reason != admission.ReasonGPUHigh {
		t.Fatalf("expected gpu-high, got %s", d)
	}

	sampler.set(10, 99, false)
	c = admission.New(testPolicy(1), sampler, logging.NewNop())
	if d := c.TryAdmit(context.Background()); !d.Admitted {
		t.Fatalf("unavailable GPU must always pass, got %s", d)
	}
}

func TestSensorErrorPassesDimension(t *testing.T) {
	sampler := &scriptedSampler{err: errors.New("no /proc")}
	sampler.snap = loadsense.Snapshot{}
	c := admission.New(testPolicy(1), sampler, logging.NewNop())
	if d := c.TryAdmit(context.Background()); !d.Admitted {
		t.Fatalf("sensor failure should not block admission, got %s", d)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	c := admission.New(testPolicy(1), nil, nil)
	c.Release()
	if c.Running() != 0 {
		t.Fatalf("expected 0 running, got %d", c.Running())
	}
}

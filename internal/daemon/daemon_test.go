package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pengystream/internal/api"
	"pengystream/internal/classify"
	"pengystream/internal/config"
	"pengystream/internal/daemon"
	"pengystream/internal/loadsense"
	"pengystream/internal/logging"
	"pengystream/internal/media/ffprobe"
	"pengystream/internal/testsupport"
	"pengystream/internal/transcode"
)

type hevcProber struct{}

func (hevcProber) Probe(context.Context, string) (ffprobe.Profile, error) {
	return ffprobe.Profile{
		VideoCodec:  "hevc",
		VideoHeight: 1080,
		AudioCodec:  "aac",
		HasVideo:    true,
		HasAudio:    true,
	}, nil
}

type idleSampler struct{}

func (idleSampler) Sample(context.Context) (loadsense.Snapshot, error) {
	return loadsense.Snapshot{CPUPercent: 5, CPUKnown: true, TakenAt: time.Now()}, nil
}

// instantTool writes the partial output and exits successfully at once.
type instantTool struct {
	mu      sync.Mutex
	sources []string
}

func (t *instantTool) Start(_ context.Context, plan classify.Plan) (transcode.Process, error) {
	if err := os.WriteFile(plan.Partial, []byte("converted"), 0o644); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.sources = append(t.sources, plan.Source)
	t.mu.Unlock()
	return doneProcess{}, nil
}

type doneProcess struct{}

func (doneProcess) PID() int { return 4242 }

func (doneProcess) Terminate(time.Duration) error { return nil }

func (doneProcess) Wait() error { return nil }

func newDaemon(t *testing.T, cfg *config.Config, tool transcode.Tool) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop(),
		daemon.WithPolicy(testsupport.FastPolicy(cfg)),
		daemon.WithSampler(idleSampler{}),
		daemon.WithProber(hevcProber{}),
		daemon.WithTool(tool),
		daemon.WithStatusInterval(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestDaemonConvertsExistingAndNewFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := testsupport.FastPolicy(cfg)
	dir := testsupport.WatchDir(cfg)

	existing := filepath.Join(dir, "Existing.mkv")
	testsupport.WriteFile(t, existing, 4096)
	testsupport.Backdate(t, existing, time.Minute)

	orphan := p.PartialPath(filepath.Join(dir, "Gone.mkv"))
	testsupport.WriteFile(t, orphan, 128)

	tool := &instantTool{}
	d := newDaemon(t, cfg, tool)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(cancel)

	waitFor(t, "existing file conversion", func() bool { return exists(p.OutputPath(existing)) })
	if exists(p.PartialPath(existing)) {
		t.Fatal("partial should be renamed on success")
	}
	waitFor(t, "orphan partial removal", func() bool { return !exists(orphan) })

	added := filepath.Join(dir, "season", "Added.mp4")
	waitFor(t, "api listener", func() bool { return d.APIAddr() != "" })
	testsupport.WriteFile(t, added, 2048)
	waitFor(t, "new file conversion", func() bool { return exists(p.OutputPath(added)) })

	client, err := api.NewClient(d.APIAddr())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	jobs, err := client.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if jobs.Counts.Succeeded != 2 {
		t.Fatalf("expected 2 succeeded jobs, got %+v", jobs.Counts)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	tool.mu.Lock()
	starts := len(tool.sources)
	tool.mu.Unlock()
	if starts != 2 {
		t.Fatalf("expected each file converted once, got %d starts", starts)
	}

	lock, err := daemon.TryLock(cfg)
	if err != nil {
		t.Fatalf("lock should be released after shutdown: %v", err)
	}
	_ = lock.Unlock()
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	lock, err := daemon.TryLock(cfg)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer lock.Unlock()

	d := newDaemon(t, cfg, &instantTool{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Run(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := daemon.TryLock(cfg); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected held lock to be reported, got %v", err)
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := daemon.New(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

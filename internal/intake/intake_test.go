package intake_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pengystream/internal/intake"
	"pengystream/internal/logging"
	"pengystream/internal/policy"
	"pengystream/internal/scheduler"
)

func testPolicy() policy.Policy {
	return policy.Policy{
		DebounceWindow:    10 * time.Millisecond,
		StabilityInterval: 40 * time.Millisecond,
		Suffix:            "-PengyStream",
		Extensions:        []string{".mkv", ".mp4"},
	}
}

type recorder struct {
	mu         sync.Mutex
	candidates []scheduler.Candidate
}

func (r *recorder) Enqueue(_ context.Context, c scheduler.Candidate) (scheduler.EnqueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append(r.candidates, c)
	return scheduler.EnqueueResult{Queued: true}, nil
}

func (r *recorder) list() []scheduler.Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduler.Candidate(nil), r.candidates...)
}

func startDebouncer(t *testing.T, rec *recorder) chan<- intake.Event {
	t.Helper()
	events := make(chan intake.Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = intake.NewDebouncer(testPolicy(), rec, logging.NewNop()).Run(ctx, events)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return events
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDebouncerCollapsesBurst(t *testing.T) {
	rec := &recorder{}
	events := startDebouncer(t, rec)
	path := filepath.Join(t.TempDir(), "movie.mkv")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 5; i++ {
		events <- intake.Event{Path: path, Kind: intake.EventWrite}
	}

	waitFor(t, "candidate", func() bool { return len(rec.list()) == 1 })
	time.Sleep(100 * time.Millisecond)
	got := rec.list()
	if len(got) != 1 {
		t.Fatalf("expected a single candidate, got %d", len(got))
	}
	if got[0].Path != path || got[0].Origin != scheduler.OriginEvent || got[0].Size != int64(len("content")) {
		t.Fatalf("unexpected candidate %+v", got[0])
	}
}

func TestDebouncerWaitsForGrowthToStop(t *testing.T) {
	rec := &recorder{}
	events := startDebouncer(t, rec)
	path := filepath.Join(t.TempDir(), "copying.mp4")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	events <- intake.Event{Path: path, Kind: intake.EventCreate}

	// Keep growing the file without sending events: only the stability
	// check can notice the change.
	for i := 0; i < 12; i++ {
		if _, err := f.WriteString("chunk"); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
		if len(rec.list()) != 0 {
			t.Fatal("file submitted while still growing")
		}
	}
	waitFor(t, "candidate after growth stops", func() bool { return len(rec.list()) == 1 })
	if got := rec.list()[0].Size; got != int64(len("chunk")*12) {
		t.Fatalf("expected final size, got %d", got)
	}
}

func TestDebouncerFiltersAndDropsMissing(t *testing.T) {
	rec := &recorder{}
	events := startDebouncer(t, rec)
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "movie-PengyStream.mkv", "movie-PengyStream.partial.mkv"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		events <- intake.Event{Path: path, Kind: intake.EventCreate}
	}
	vanished := filepath.Join(dir, "vanished.mkv")
	if err := os.WriteFile(vanished, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	events <- intake.Event{Path: vanished, Kind: intake.EventCreate}
	if err := os.Remove(vanished); err != nil {
		t.Fatalf("remove: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := rec.list(); len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestWatcherReportsFilesInNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := intake.NewWatcher([]string{root}, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to subscribe the root.
	time.Sleep(100 * time.Millisecond)
	nested := filepath.Join(root, "season1")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	target := filepath.Join(nested, "ep1.mkv")
	if err := os.WriteFile(target, []byte("content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case event := <-w.Events():
			if event.Path == target {
				return
			}
		case <-timeout:
			t.Fatal("no event for file in new directory")
		}
	}
}

package reconcile_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"pengystream/internal/logging"
	"pengystream/internal/policy"
	"pengystream/internal/reconcile"
	"pengystream/internal/scheduler"
)

func testPolicy() policy.Policy {
	return policy.Policy{
		StabilityInterval: 5 * time.Second,
		PollInterval:      time.Hour,
		CleanupInterval:   time.Hour,
		Suffix:            "-PengyStream",
		Extensions:        []string{".mkv", ".mp4"},
	}
}

// fakeScheduler queues every submitted path once.
type fakeScheduler struct {
	mu     sync.Mutex
	active map[string]bool
	queued []string
}

func newScheduler() *fakeScheduler {
	return &fakeScheduler{active: map[string]bool{}}
}

func (f *fakeScheduler) IsActive(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[path]
}

func (f *fakeScheduler) Known(c scheduler.Candidate) bool {
	return f.IsActive(c.Path)
}

func (f *fakeScheduler) Enqueue(_ context.Context, c scheduler.Candidate) (scheduler.EnqueueResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active[c.Path] {
		return scheduler.EnqueueResult{Rejected: scheduler.RejectDuplicate}, nil
	}
	f.active[c.Path] = true
	f.queued = append(f.queued, c.Path)
	return scheduler.EnqueueResult{Queued: true}, nil
}

func writeFile(t *testing.T, path string, age time.Duration) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCleanOrphansDeletesOnlyOrphans(t *testing.T) {
	root := t.TempDir()
	p := testPolicy()
	sched := newScheduler()

	orphan := writeFile(t, filepath.Join(root, "gone-PengyStream.mkv"), time.Hour)
	keptSource := writeFile(t, filepath.Join(root, "kept.mkv"), time.Hour)
	keptOutput := writeFile(t, p.OutputPath(keptSource), time.Hour)
	activeOutput := writeFile(t, filepath.Join(root, "nested", "busy-PengyStream.mkv"), time.Hour)
	sched.active[filepath.Join(root, "nested", "busy.mkv")] = true
	stalePartial := writeFile(t, p.PartialPath(keptSource), time.Hour)
	unrelated := writeFile(t, filepath.Join(root, "notes-PengyStream.txt"), time.Hour)

	result := reconcile.New([]string{root}, p, sched, logging.NewNop()).CleanOrphans(context.Background())

	sort.Strings(result.Deleted)
	want := []string{orphan, stalePartial}
	sort.Strings(want)
	if len(result.Deleted) != 2 || result.Deleted[0] != want[0] || result.Deleted[1] != want[1] {
		t.Fatalf("unexpected deletions %v", result.Deleted)
	}
	for _, path := range []string{keptSource, keptOutput, activeOutput, unrelated} {
		if !exists(path) {
			t.Fatalf("expected %s to remain", path)
		}
	}
	for _, path := range want {
		if exists(path) {
			t.Fatalf("expected %s to be deleted", path)
		}
	}
}

func TestActivePartialProtected(t *testing.T) {
	root := t.TempDir()
	p := testPolicy()
	sched := newScheduler()
	source := writeFile(t, filepath.Join(root, "movie.mkv"), time.Hour)
	partial := writeFile(t, p.PartialPath(source), 0)
	sched.active[source] = true

	result := reconcile.New([]string{root}, p, sched, logging.NewNop()).CleanOrphans(context.Background())
	if len(result.Deleted) != 0 || !exists(partial) {
		t.Fatalf("expected running job's partial to survive, deleted %v", result.Deleted)
	}
}

func TestDryRunReportsWithoutDeleting(t *testing.T) {
	root := t.TempDir()
	orphan := writeFile(t, filepath.Join(root, "gone-PengyStream.mp4"), time.Hour)
	pending := writeFile(t, filepath.Join(root, "new.mp4"), time.Hour)

	result := reconcile.New([]string{root}, testPolicy(), nil, logging.NewNop(), reconcile.WithDryRun(true)).Sweep(context.Background())
	if !result.DryRun {
		t.Fatal("expected dry-run result")
	}
	if len(result.Deleted) != 1 || result.Deleted[0] != orphan || !exists(orphan) {
		t.Fatalf("unexpected dry-run deletions %v", result.Deleted)
	}
	if len(result.Submitted) != 1 || result.Submitted[0] != pending {
		t.Fatalf("unexpected dry-run submissions %v", result.Submitted)
	}
}

func TestRescanSubmitsMissedFiles(t *testing.T) {
	root := t.TempDir()
	p := testPolicy()
	sched := newScheduler()

	missed := writeFile(t, filepath.Join(root, "show", "ep1.mkv"), time.Hour)
	done := writeFile(t, filepath.Join(root, "done.mkv"), time.Hour)
	writeFile(t, p.OutputPath(done), 0)
	writeFile(t, filepath.Join(root, "writing.mkv"), 0)
	writeFile(t, filepath.Join(root, ".hidden", "skip.mkv"), time.Hour)
	writeFile(t, filepath.Join(root, "show", "._ep1.mkv"), time.Hour)
	writeFile(t, filepath.Join(root, "readme.txt"), time.Hour)

	result := reconcile.New([]string{root}, p, sched, logging.NewNop()).Rescan(context.Background())
	if len(result.Submitted) != 1 || result.Submitted[0] != missed {
		t.Fatalf("unexpected submissions %v", result.Submitted)
	}
}

func TestStaleOutputResubmitted(t *testing.T) {
	root := t.TempDir()
	p := testPolicy()
	sched := newScheduler()
	source := writeFile(t, filepath.Join(root, "movie.mkv"), time.Hour)
	writeFile(t, p.OutputPath(source), 2*time.Hour)

	result := reconcile.New([]string{root}, p, sched, logging.NewNop()).Rescan(context.Background())
	if len(result.Submitted) != 1 {
		t.Fatalf("expected source newer than its output to be resubmitted, got %v", result.Submitted)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	root := t.TempDir()
	p := testPolicy()
	sched := newScheduler()
	writeFile(t, filepath.Join(root, "a.mkv"), time.Hour)
	writeFile(t, filepath.Join(root, "b.mp4"), time.Hour)
	writeFile(t, filepath.Join(root, "old-PengyStream.mkv"), time.Hour)

	sweeper := reconcile.New([]string{root}, p, sched, logging.NewNop())
	first := sweeper.Sweep(context.Background())
	if len(first.Deleted) != 1 || len(first.Submitted) != 2 {
		t.Fatalf("unexpected first sweep: deleted %v submitted %v", first.Deleted, first.Submitted)
	}
	second := sweeper.Sweep(context.Background())
	if len(second.Deleted) != 0 || len(second.Submitted) != 0 || len(second.Errors) != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %+v", second)
	}
}

func TestMissingRootIsIgnored(t *testing.T) {
	result := reconcile.New([]string{filepath.Join(t.TempDir(), "absent")}, testPolicy(), newScheduler(), logging.NewNop()).Sweep(context.Background())
	if len(result.Errors) != 0 {
		t.Fatalf("expected missing root to be ignored, got %v", result.Errors)
	}
}

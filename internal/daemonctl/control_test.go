package daemonctl

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pengystream/internal/daemon"
	"pengystream/internal/testsupport"
)

func TestRunningFollowsLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	running, err := Running(cfg)
	if err != nil || running {
		t.Fatalf("expected idle daemon, got running=%v err=%v", running, err)
	}

	lock, err := daemon.TryLock(cfg)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	running, err = Running(cfg)
	if err != nil || !running {
		t.Fatalf("expected running daemon, got running=%v err=%v", running, err)
	}
	_ = lock.Unlock()
	if err := WaitForState(cfg, false, time.Second); err != nil {
		t.Fatalf("WaitForState: %v", err)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := StopAndTerminate(cfg, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestEnsureStartedReportsExistingDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lock, err := daemon.TryLock(cfg)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer lock.Unlock()

	result, err := EnsureStarted(cfg, "/nonexistent/pengystream", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != StartStateAlreadyRunning {
		t.Fatalf("expected already running, got %s", result.State)
	}
}

func TestLaunchPassesConfigAndLevel(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "args")
	script := filepath.Join(dir, "pengystream")
	body := "#!/bin/sh\necho \"$@\" > " + marker + ".tmp && mv " + marker + ".tmp " + marker + "\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	if err := Launch(script, LaunchOptions{ConfigPath: "/etc/pengystream.toml", LogLevel: "debug"}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(marker)
		if err == nil && len(data) > 0 {
			got := strings.TrimSpace(string(data))
			if got != "run --config /etc/pengystream.toml --log-level debug" {
				t.Fatalf("unexpected args %q", got)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("launched process did not run")
}

func TestSignalProcessRefusesSelf(t *testing.T) {
	if err := signalProcess(os.Getpid(), 0); err == nil {
		t.Fatal("expected refusal to signal current process")
	}
	if err := signalProcess(0, 0); err == nil {
		t.Fatal("expected error for unknown pid")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch(" ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

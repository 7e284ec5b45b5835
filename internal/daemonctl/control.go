package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"pengystream/internal/config"
	"pengystream/internal/daemon"
	"pengystream/internal/daemonrun"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// ErrDaemonNotRunning indicates no process holds the daemon lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 100 * time.Millisecond

// Launch starts a detached `pengystream run` process in its own session.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Running reports whether another process holds the daemon lock.
func Running(cfg *config.Config) (bool, error) {
	lock, err := daemon.TryLock(cfg)
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, lock.Unlock()
}

// WaitForState polls the lock until Running reports want or timeout elapses.
func WaitForState(cfg *config.Config, want bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, err := Running(cfg)
		if err != nil {
			return err
		}
		if running == want {
			return nil
		}
		if time.Now().After(deadline) {
			if want {
				return fmt.Errorf("daemon did not start within %s; check %s", timeout, filepath.Join(cfg.Paths.LogDir, "pengystream.log"))
			}
			return fmt.Errorf("daemon did not stop within %s", timeout)
		}
		time.Sleep(pollInterval)
	}
}

// EnsureStarted launches the daemon unless one already holds the lock.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	running, err := Running(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: daemonrun.ReadPID(cfg)}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if err := WaitForState(cfg, true, waitTimeout); err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: daemonrun.ReadPID(cfg)}, nil
}

// StopAndTerminate sends SIGTERM to the daemon and force-kills it when the
// lock is still held after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, err := Running(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	pid := daemonrun.ReadPID(cfg)
	if err := signalProcess(pid, unix.SIGTERM); err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if err := WaitForState(cfg, false, gracePeriod); err == nil {
		return result, nil
	}

	if err := signalProcess(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(daemonrun.PIDPath(cfg))
	result.ForcedKill = true
	return result, WaitForState(cfg, false, 5*time.Second)
}

func signalProcess(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("unable to determine daemon pid; is the pid file missing?")
	}
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"pengystream/internal/classify"
	"pengystream/internal/logging"
)

const stderrTailBytes = 4096

// Process is a running transform.
type Process interface {
	PID() int
	// Terminate asks the process to stop and force-kills it after grace.
	Terminate(grace time.Duration) error
	// Wait blocks until the process exits. Non-zero exits return an *ExitError.
	Wait() error
}

// Tool starts transforms for plans.
type Tool interface {
	Start(ctx context.Context, plan classify.Plan) (Process, error)
}

// ExitError describes a transform that exited unsuccessfully.
type ExitError struct {
	Code       int
	StderrTail string
	Err        error
}

func (e *ExitError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("ffmpeg exited with code %d", e.Code)
	}
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.Code, lastLine(e.StderrTail))
}

func (e *ExitError) Unwrap() error { return e.Err }

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	settings Settings
	logger   *slog.Logger
}

// NewFFmpeg constructs the ffmpeg-backed Tool.
func NewFFmpeg(settings Settings, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(settings.Binary) == "" {
		settings.Binary = "ffmpeg"
	}
	return &FFmpeg{settings: settings, logger: logging.NewComponentLogger(logger, "transcode")}
}

// Start implements Tool. The process is not bound to ctx; callers stop it
// through Terminate so it receives a signal rather than being abandoned.
func (f *FFmpeg) Start(ctx context.Context, plan classify.Plan) (Process, error) {
	if plan.Action == classify.Skip {
		return nil, errors.New("transcode: plan does not require conversion")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := BuildArgs(f.settings, plan)
	cmd := exec.Command(f.settings.Binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	tail := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	logging.WithContext(ctx, f.logger).Debug("ffmpeg started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("args", strings.Join(args, " ")),
	)
	p := &process{cmd: cmd, tail: tail, done: make(chan struct{})}
	go p.reap()
	return p, nil
}

type process struct {
	cmd  *exec.Cmd
	tail *tailBuffer
	done chan struct{}
	err  error
}

func (p *process) reap() {
	err := p.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		code := -1
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		err = &ExitError{Code: code, StderrTail: p.tail.String(), Err: err}
	}
	p.err = err
	close(p.done)
}

func (p *process) PID() int { return p.cmd.Process.Pid }

func (p *process) Wait() error {
	<-p.done
	return p.err
}

func (p *process) Terminate(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	pgid := p.cmd.Process.Pid
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", pgid, err)
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill process group %d: %w", pgid, err)
	}
	<-p.done
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"pengystream/internal/admission"
	"pengystream/internal/api"
	"pengystream/internal/classify"
	"pengystream/internal/config"
	"pengystream/internal/deps"
	"pengystream/internal/intake"
	"pengystream/internal/loadsense"
	"pengystream/internal/logging"
	"pengystream/internal/media/ffprobe"
	"pengystream/internal/policy"
	"pengystream/internal/reconcile"
	"pengystream/internal/scheduler"
	"pengystream/internal/transcode"
)

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another pengystream daemon instance is already running")

const lockFileName = "pengystream.lock"

// Daemon owns the component graph and the single-instance lock.
type Daemon struct {
	cfg    *config.Config
	policy policy.Policy
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	admission *admission.Controller
	scheduler *scheduler.Scheduler
	sweeper   *reconcile.Sweeper
	watcher   *intake.Watcher
	debouncer *intake.Debouncer
	api       *api.Server

	statusInterval time.Duration
	pidPath        string
	running        atomic.Bool
}

type components struct {
	policy         *policy.Policy
	sampler        loadsense.Sampler
	prober         ffprobe.Prober
	tool           transcode.Tool
	deps           []deps.Status
	statusInterval time.Duration
	pidPath        string
}

// Option replaces a default component.
type Option func(*components)

// WithPolicy overrides the policy derived from configuration.
func WithPolicy(p policy.Policy) Option {
	return func(c *components) { c.policy = &p }
}

// WithSampler overrides the procfs/nvidia-smi load sampler.
func WithSampler(s loadsense.Sampler) Option {
	return func(c *components) { c.sampler = s }
}

// WithProber overrides the ffprobe runner.
func WithProber(p ffprobe.Prober) Option {
	return func(c *components) { c.prober = p }
}

// WithTool overrides the ffmpeg transform tool.
func WithTool(t transcode.Tool) Option {
	return func(c *components) { c.tool = t }
}

// WithDependencies records dependency checks for the health endpoint.
func WithDependencies(statuses []deps.Status) Option {
	return func(c *components) { c.deps = statuses }
}

// WithStatusInterval sets how often queue and load are logged.
func WithStatusInterval(d time.Duration) Option {
	return func(c *components) { c.statusInterval = d }
}

// WithPIDFile records the process id at path while the lock is held.
func WithPIDFile(path string) Option {
	return func(c *components) { c.pidPath = path }
}

// LockPath returns the lock file location for cfg.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, lockFileName)
}

// TryLock acquires the daemon lock for a one-shot command. The caller must
// Unlock it. ErrAlreadyRunning is returned when a daemon holds it.
func TryLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(LockPath(cfg))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return lock, nil
}

// New constructs a daemon with its components wired but not started.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	c := components{statusInterval: time.Minute}
	for _, opt := range opts {
		opt(&c)
	}
	p := cfg.Policy()
	if c.policy != nil {
		p = *c.policy
	}
	if c.sampler == nil {
		cpu, err := loadsense.NewProcSampler(p.LoadRecheck)
		if err != nil {
			logging.WarnWithContext(logger, "cpu sensor unavailable; cpu threshold disabled", "cpu_sensor_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that /proc is mounted"),
				logging.String(logging.FieldImpact, "jobs start regardless of cpu load"),
			)
		}
		combined := loadsense.Combined{GPU: loadsense.NvidiaSampler{Binary: cfg.Tools.NvidiaSMI}}
		if cpu != nil {
			combined.CPU = cpu
		}
		c.sampler = combined
	}
	if c.prober == nil {
		c.prober = ffprobe.Runner{Binary: cfg.Tools.FFprobe}
	}
	if c.tool == nil {
		c.tool = transcode.NewFFmpeg(transcode.Settings{
			Binary:       cfg.Tools.FFmpeg,
			VideoEncoder: cfg.Encoding.VideoEncoder,
			VideoPreset:  cfg.Encoding.VideoPreset,
			VideoCRF:     cfg.Encoding.VideoCRF,
			AudioEncoder: cfg.Encoding.AudioEncoder,
			AudioBitrate: cfg.Encoding.AudioBitrate,
		}, logger)
	}

	admit := admission.New(p, c.sampler, logger)
	sched := scheduler.New(p, classify.NewPlanner(c.prober, p, logger), admit, c.tool, logger)
	lockPath := LockPath(cfg)
	d := &Daemon{
		cfg:            cfg,
		policy:         p,
		logger:         logging.NewComponentLogger(logger, "daemon"),
		lockPath:       lockPath,
		lock:           flock.New(lockPath),
		admission:      admit,
		scheduler:      sched,
		sweeper:        reconcile.New(cfg.Paths.WatchDirs, p, sched, logger),
		watcher:        intake.NewWatcher(cfg.Paths.WatchDirs, logger),
		debouncer:      intake.NewDebouncer(p, sched, logger),
		statusInterval: c.statusInterval,
		pidPath:        c.pidPath,
	}
	d.api = api.NewServer(cfg.API.Bind, sched, admit, api.Options{
		MaxConcurrent: p.MaxConcurrent,
		Dependencies:  c.deps,
	}, logger)
	return d, nil
}

// Run acquires the lock, starts every component and blocks until ctx is
// cancelled. It returns after running jobs have been stopped and the final
// orphan cleanup has completed.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if d.pidPath != "" {
		if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer os.Remove(d.pidPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.api.Start(runCtx); err != nil {
		return err
	}

	schedErr := make(chan error, 1)
	go func() { schedErr <- d.scheduler.Run(runCtx) }()

	var wg sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(runCtx); err != nil {
				logging.ErrorWithContext(d.logger, name+" stopped with error", "component_failed", logging.Error(err))
			}
		}()
	}
	start("watcher", d.watcher.Run)
	start("debouncer", func(ctx context.Context) error { return d.debouncer.Run(ctx, d.watcher.Events()) })
	start("sweeper", d.sweeper.Run)
	start("status reporter", d.reportStatus)

	d.logger.Info("pengystream daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Int("watch_dirs", len(d.cfg.Paths.WatchDirs)),
		logging.Int("max_concurrent", d.policy.MaxConcurrent),
		logging.String("api", d.api.Addr()),
	)

	<-ctx.Done()
	d.logger.Info("pengystream daemon shutting down", logging.String(logging.FieldEventType, "daemon_stopping"))
	cancel()
	wg.Wait()
	err = <-schedErr

	// Nothing is active any more, so every leftover partial is stale.
	d.sweeper.CleanOrphans(context.Background())

	counts := d.scheduler.Counts()
	d.logger.Info("pengystream daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
		logging.Int("succeeded", counts.Succeeded),
		logging.Int("failed", counts.Failed),
		logging.Int("cancelled", counts.Cancelled),
	)
	return err
}

func (d *Daemon) reportStatus(ctx context.Context) error {
	ticker := time.NewTicker(d.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			counts := d.scheduler.Counts()
			load := d.admission.Snapshot()
			d.logger.Info("status",
				logging.String(logging.FieldEventType, "status"),
				logging.Int("queued", counts.Queued),
				logging.Int("running", counts.Running),
				logging.Int("succeeded", counts.Succeeded),
				logging.Int("failed", counts.Failed),
				logging.Float64("cpu_percent", load.CPUPercent),
				logging.Float64("gpu_percent", load.GPUPercent),
				logging.Bool("gpu_available", load.GPUAvailable),
			)
		}
	}
}

// Scheduler exposes the scheduler for tests and in-process callers.
func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.scheduler
}

// APIAddr returns the bound status API address, or "" when disabled.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// LockPath returns the daemon lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

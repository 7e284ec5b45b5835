package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pengystream/internal/config"
	"pengystream/internal/daemon"
	"pengystream/internal/logging"
	"pengystream/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

const (
	logPrefix   = "pengystream"
	pidFileName = "pengystream.pid"
)

// Run starts the PengyStream daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("%s-%s.log", logPrefix, runID))

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s.log link: %v\n", logPrefix, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logPrefix + "-*.log", Exclude: []string{logPath}},
	)

	results := preflight.RunAll(signalCtx, cfg)
	logDependencySnapshot(logger, results)
	if err := preflight.Err(results); err != nil {
		logging.ErrorWithContext(logger, "preflight checks failed", "preflight_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `pengystream status` to see which check failed"),
		)
		return err
	}

	d, err := daemon.New(cfg, logger,
		daemon.WithDependencies(preflight.CheckSystemDeps(cfg)),
		daemon.WithPIDFile(PIDPath(cfg)),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	logger.Info("pengystream starting",
		logging.String(logging.FieldEventType, "daemon_starting"),
		logging.String("log_path", logPath),
	)
	logConfigSummary(logger, cfg)
	if err := d.Run(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			logging.WarnWithContext(logger, "daemon lock held", "daemon_lock_held",
				logging.String("lock", d.LockPath()),
				logging.String(logging.FieldErrorHint, "stop the running instance before starting another"),
			)
		}
		return err
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logPrefix+".log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

// PIDPath returns the pid file written by a running daemon.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, pidFileName)
}

// ReadPID returns the pid recorded by a running daemon, or 0 when none is.
func ReadPID(cfg *config.Config) int {
	if cfg == nil {
		return 0
	}
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func logDependencySnapshot(logger *slog.Logger, results []preflight.Result) {
	if logger == nil {
		return
	}
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, r := range results {
		attrs = append(attrs, logging.Bool(snapshotKey(r.Name), r.Passed))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func logConfigSummary(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "config_summary")}
	for _, kv := range cfg.Summary() {
		attrs = append(attrs, logging.String(attrKey(kv[0]), kv[1]))
	}
	logger.Info("configuration", logging.Args(attrs...)...)
}

func snapshotKey(name string) string {
	return attrKey(name) + "_ok"
}

func attrKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_", ":", "").Replace(key)
}

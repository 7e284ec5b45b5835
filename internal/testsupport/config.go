package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pengystream/internal/config"
	"pengystream/internal/policy"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The API listens on an ephemeral loopback port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchDirs = []string{filepath.Join(base, "media")}
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	for _, dir := range append([]string{cfgVal.Paths.LogDir}, cfgVal.Paths.WatchDirs...) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithoutAPI disables the status listener.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Bind = ""
	}
}

// WithMaxConcurrent overrides the encode slot count.
func WithMaxConcurrent(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoding.MaxConcurrent = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// WatchDir returns the first watched directory of the generated config.
func WatchDir(cfg *config.Config) string {
	return cfg.Paths.WatchDirs[0]
}

// FastPolicy derives the config policy with millisecond timings so tests
// exercising the debounce, sweep and admission loops finish quickly.
func FastPolicy(cfg *config.Config) policy.Policy {
	p := cfg.Policy()
	p.LoadRecheck = 10 * time.Millisecond
	p.PollInterval = 50 * time.Millisecond
	p.CleanupInterval = 50 * time.Millisecond
	p.AdmissionRetry = 10 * time.Millisecond
	p.StabilityInterval = 20 * time.Millisecond
	p.DebounceWindow = 10 * time.Millisecond
	p.ShutdownTimeout = time.Second
	p.ProbeRetryDelay = 20 * time.Millisecond
	return p
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"pengystream/internal/config"
)

func TestLoadDefaultConfigUsesEnvWatchDirsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PENGYSTREAM_WATCH_DIRS", "~/Movies, ~/Shows,~/Movies")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	want := []string{filepath.Join(tempHome, "Movies"), filepath.Join(tempHome, "Shows")}
	if len(cfg.Paths.WatchDirs) != len(want) {
		t.Fatalf("unexpected watch dirs: %v", cfg.Paths.WatchDirs)
	}
	for i := range want {
		if cfg.Paths.WatchDirs[i] != want[i] {
			t.Fatalf("watch dir %d: got %q want %q", i, cfg.Paths.WatchDirs[i], want[i])
		}
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, ".local", "share", "pengystream") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Encoding.MaxHeight != 1440 {
		t.Fatalf("expected max height 1440, got %d", cfg.Encoding.MaxHeight)
	}
	if cfg.Encoding.MaxConcurrent != 2 {
		t.Fatalf("expected max concurrent 2, got %d", cfg.Encoding.MaxConcurrent)
	}
	if !cfg.Encoding.CopyIfCompatible {
		t.Fatal("expected copy_if_compatible enabled by default")
	}
	if cfg.API.Bind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
}

func TestLoadFailsWithoutWatchDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PENGYSTREAM_WATCH_DIRS", "")

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error when no watch directories are configured")
	}
	if !strings.Contains(err.Error(), "paths.watch_dirs") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCustomPathOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PENGYSTREAM_WATCH_DIRS", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"watch_dirs": []string{"~/films"},
			"log_dir":    "~/state",
		},
		"encoding": map[string]any{
			"video_codec":    "HEVC",
			"max_resolution": "1080P",
			"extensions":     []string{"MKV", ".mp4", "mkv"},
			"max_concurrent": 4,
		},
		"load": map[string]any{
			"cpu_threshold": 65.5,
		},
		"workflow": map[string]any{
			"poll_interval": 15,
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected %q to be loaded, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.WatchDirs[0] != filepath.Join(tempHome, "films") {
		t.Fatalf("unexpected watch dir: %q", cfg.Paths.WatchDirs[0])
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Encoding.VideoCodec != "hevc" {
		t.Fatalf("expected lower-cased codec, got %q", cfg.Encoding.VideoCodec)
	}
	if cfg.Encoding.MaxHeight != 1080 {
		t.Fatalf("expected max height 1080, got %d", cfg.Encoding.MaxHeight)
	}
	if got := strings.Join(cfg.Encoding.Extensions, ","); got != ".mkv,.mp4" {
		t.Fatalf("unexpected extensions: %s", got)
	}

	p := cfg.Policy()
	if p.MaxConcurrent != 4 {
		t.Fatalf("expected policy max concurrent 4, got %d", p.MaxConcurrent)
	}
	if p.CPUThreshold != 65.5 {
		t.Fatalf("expected cpu threshold 65.5, got %v", p.CPUThreshold)
	}
	if p.PollInterval != 15*time.Second {
		t.Fatalf("expected poll interval 15s, got %s", p.PollInterval)
	}
	if p.CleanupInterval != time.Hour {
		t.Fatalf("expected cleanup interval 1h, got %s", p.CleanupInterval)
	}
	if p.Suffix != "-PengyStream" {
		t.Fatalf("unexpected suffix %q", p.Suffix)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	body := "[paths]\nwatch_dirs = [\"/tmp\"]\nmovie_folder = \"/tmp\"\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"threshold above range", func(c *config.Config) { c.Load.CPUThreshold = 120 }, "load.cpu_threshold"},
		{"negative gpu threshold", func(c *config.Config) { c.Load.GPUThreshold = -1 }, "load.gpu_threshold"},
		{"zero concurrency", func(c *config.Config) { c.Encoding.MaxConcurrent = 0 }, "encoding.max_concurrent"},
		{"zero poll interval", func(c *config.Config) { c.Workflow.PollInterval = 0 }, "workflow.poll_interval"},
		{"suffix with dot", func(c *config.Config) { c.Encoding.OutputSuffix = ".conv" }, "encoding.output_suffix"},
		{"probe attempts", func(c *config.Config) { c.Workflow.ProbeMaxAttempts = 0 }, "workflow.probe_max_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.WatchDirs = []string{t.TempDir()}
			cfg.Encoding.MaxHeight = 1440
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	cases := map[string]int{"1440p": 1440, "1080P": 1080, " 720 ": 720}
	for input, want := range cases {
		got, err := config.ParseResolution(input)
		if err != nil {
			t.Fatalf("ParseResolution(%q) error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseResolution(%q) = %d, want %d", input, got, want)
		}
	}
	for _, bad := range []string{"", "p", "4k", "-1p"} {
		if _, err := config.ParseResolution(bad); err == nil {
			t.Fatalf("expected ParseResolution(%q) to fail", bad)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config did not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if len(cfg.Paths.WatchDirs) != 1 {
		t.Fatalf("unexpected watch dirs: %v", cfg.Paths.WatchDirs)
	}
}

func TestLoadSectionDecodesThresholds(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	body := "[paths]\nwatch_dirs = [\"" + dir + "\"]\n\n[load]\ncpu_threshold = 70\ngpu_threshold = 55\nrecheck_seconds = 3\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := config.LoadSettings{CPUThreshold: 70, GPUThreshold: 55, RecheckSeconds: 3}
	if cfg.Load != want {
		t.Fatalf("unexpected load settings %+v", cfg.Load)
	}
	if got := cfg.Policy().LoadRecheck; got != 3*time.Second {
		t.Fatalf("expected recheck 3s, got %s", got)
	}
}

package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pengystream/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestRunAllPassesWithToolsPresent(t *testing.T) {
	bin := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDirs = []string{t.TempDir()}
	cfg.Paths.LogDir = t.TempDir()
	cfg.Tools.FFmpeg = writeStub(t, bin, "ffmpeg", "echo ' V....D libx264  H.264'\necho ' A....D aac  AAC'\n")
	cfg.Tools.FFprobe = writeStub(t, bin, "ffprobe", "exit 0\n")
	cfg.Tools.NvidiaSMI = "definitely-missing-nvidia-smi"

	results := RunAll(context.Background(), &cfg)
	if err := Err(results); err != nil {
		t.Fatalf("expected preflight to pass, got %v", err)
	}
	var sawEncoder, sawOptional bool
	for _, r := range results {
		if r.Name == "encoder libx264" && r.Passed {
			sawEncoder = true
		}
		if r.Name == "nvidia-smi" && !r.Passed && r.Optional {
			sawOptional = true
		}
	}
	if !sawEncoder || !sawOptional {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestRunAllFailsOnMissingToolAndDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WatchDirs = []string{filepath.Join(t.TempDir(), "absent")}
	cfg.Paths.LogDir = t.TempDir()
	cfg.Tools.FFmpeg = "definitely-missing-ffmpeg"
	cfg.Tools.FFprobe = "definitely-missing-ffprobe"

	err := Err(RunAll(context.Background(), &cfg))
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	for _, want := range []string{"Watch directory", "FFmpeg", "FFprobe"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestCheckInotifyLimit(t *testing.T) {
	original := readSysctlInts
	t.Cleanup(func() { readSysctlInts = original })

	readSysctlInts = func(string) ([]int, error) { return []int{524288}, nil }
	if r := CheckInotifyLimit(2); !r.Passed || !r.Optional {
		t.Fatalf("expected generous limit to pass: %+v", r)
	}
	readSysctlInts = func(string) ([]int, error) { return []int{8192}, nil }
	if r := CheckInotifyLimit(3); r.Passed {
		t.Fatalf("expected low limit warning: %+v", r)
	}
	readSysctlInts = func(string) ([]int, error) { return nil, errors.New("no proc") }
	if r := CheckInotifyLimit(1); r.Passed || !r.Optional {
		t.Fatalf("expected advisory failure: %+v", r)
	}
	if Err([]Result{CheckInotifyLimit(1)}) != nil {
		t.Fatal("advisory checks must not fail preflight")
	}
}

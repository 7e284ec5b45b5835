package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pengystream/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Optional", Command: "also-not-present", Optional: true},
		{Name: "Empty"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("unexpected detail for empty command: %q", results[3].Detail)
	}
}

func TestRequirementsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.FFmpeg = "/opt/ffmpeg/bin/ffmpeg"
	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/ffmpeg/bin/ffmpeg" || reqs[0].Optional {
		t.Fatalf("unexpected ffmpeg requirement %#v", reqs[0])
	}
	if !reqs[2].Optional {
		t.Fatal("expected nvidia-smi to be optional")
	}
	if Requirements(nil) != nil {
		t.Fatal("expected nil requirements for nil config")
	}
}

func TestCheckEncoder(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := filepath.Join(dir, "ffmpeg")
	listing := "#!/bin/sh\ncat <<'EOF'\nEncoders:\n V..... = Video\n ------\n V....D libx264              libx264 H.264 / AVC\n A....D aac                  AAC (Advanced Audio Coding)\nEOF\n"
	if err := os.WriteFile(ffmpeg, []byte(listing), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	ctx := context.Background()

	if status := CheckEncoder(ctx, ffmpeg, "libx264"); !status.Available {
		t.Fatalf("expected libx264 available: %#v", status)
	}
	if status := CheckEncoder(ctx, ffmpeg, "h264_nvenc"); status.Available || status.Detail == "" {
		t.Fatalf("expected h264_nvenc unavailable: %#v", status)
	}
	if status := CheckEncoder(ctx, filepath.Join(dir, "missing"), "copy"); !status.Available {
		t.Fatal("copy should never require an encoder")
	}
	if status := CheckEncoder(ctx, filepath.Join(dir, "missing"), "aac"); status.Available {
		t.Fatal("expected failure when ffmpeg cannot run")
	}
}

package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pengystream/internal/config"
	"pengystream/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every startup check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, dir := range cfg.Paths.WatchDirs {
		results = append(results, CheckDirectoryAccess("Watch directory", dir))
	}
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	statuses := CheckSystemDeps(cfg)
	ffmpegOK := false
	for _, status := range statuses {
		results = append(results, fromStatus(status))
		if status.Name == "FFmpeg" && status.Available {
			ffmpegOK = true
		}
	}
	if ffmpegOK {
		results = append(results,
			fromStatus(deps.CheckEncoder(ctx, cfg.Tools.FFmpeg, cfg.Encoding.VideoEncoder)),
			fromStatus(deps.CheckEncoder(ctx, cfg.Tools.FFmpeg, cfg.Encoding.AudioEncoder)),
		)
	}
	results = append(results, CheckInotifyLimit(len(cfg.Paths.WatchDirs)))
	return results
}

// Err joins the failures of required checks, or returns nil.
func Err(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Passed || r.Optional {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Detail))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("preflight failed: %w", errors.Join(errs...))
}

func fromStatus(status deps.Status) Result {
	name := status.Name
	detail := status.Detail
	if status.Available {
		detail = strings.TrimSpace(status.Command)
		if status.Detail != "" {
			detail = status.Detail
		}
	}
	return Result{Name: name, Passed: status.Available, Optional: status.Optional, Detail: detail}
}

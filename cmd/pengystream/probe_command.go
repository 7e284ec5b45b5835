package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"pengystream/internal/classify"
	"pengystream/internal/logging"
	"pengystream/internal/media/ffprobe"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>...",
		Short: "Show how files would be classified without converting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := cfg.Policy()
			planner := classify.NewPlanner(ffprobe.Runner{Binary: cfg.Tools.FFprobe}, p, logging.NewNop())

			rows := make([][]string, 0, len(args))
			failures := 0
			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					path = arg
				}
				if !p.IsMedia(path) {
					rows = append(rows, []string{filepath.Base(path), "-", "-", "-", "not a media file"})
					continue
				}
				plan, err := planner.Plan(cmd.Context(), path)
				if err != nil {
					failures++
					rows = append(rows, []string{filepath.Base(path), "-", "-", "-", err.Error()})
					continue
				}
				rows = append(rows, []string{
					filepath.Base(path),
					describeVideo(plan.Profile),
					valueOr(plan.Profile.AudioCodec, "none"),
					plan.Action.String(),
					describeTarget(plan),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Video", "Audio", "Action", "Output"}, rows, nil))
			if failures > 0 {
				return fmt.Errorf("%d of %d files could not be probed", failures, len(args))
			}
			return nil
		},
	}
}

func describeVideo(profile ffprobe.Profile) string {
	if !profile.HasVideo {
		return "none"
	}
	return fmt.Sprintf("%s %dp", profile.VideoCodec, profile.VideoHeight)
}

func describeTarget(plan classify.Plan) string {
	if plan.Action == classify.Skip {
		return "unchanged"
	}
	target := filepath.Base(plan.Output)
	if plan.ScaleHeight > 0 {
		target += fmt.Sprintf(" (scaled to %dp)", plan.ScaleHeight)
	}
	return target
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

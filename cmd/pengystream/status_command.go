package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pengystream/internal/api"
	"pengystream/internal/daemonrun"
	"pengystream/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, load and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Daemon", colorize)
			health, jobs, apiErr := fetchStatus(cmd.Context(), cfg.API.Bind)
			switch {
			case apiErr == nil:
				lines = append(lines,
					renderStatusLine("PengyStream", statusOK, fmt.Sprintf("Running (pid %d, up %s)", health.PID, (time.Duration(health.UptimeSeconds)*time.Second).String()), colorize),
					renderStatusLine("Encodes", statusInfo, fmt.Sprintf("%d running / %d max, %d queued", health.Counts.Running, health.MaxConcurrent, health.Counts.Queued), colorize),
					renderStatusLine("Completed", statusInfo, fmt.Sprintf("%d succeeded, %d failed, %d cancelled", health.Counts.Succeeded, health.Counts.Failed, health.Counts.Cancelled), colorize),
					renderStatusLine("CPU", loadKind(health.Load.CPUKnown, health.Load.CPUPercent, cfg.Load.CPUThreshold), loadText(health.Load.CPUKnown, health.Load.CPUPercent), colorize),
					renderStatusLine("GPU", loadKind(health.Load.GPUAvailable, health.Load.GPUPercent, cfg.Load.GPUThreshold), loadText(health.Load.GPUAvailable, health.Load.GPUPercent), colorize),
				)
			case api.IsUnavailable(apiErr):
				message := "Not running"
				if pid := daemonrun.ReadPID(cfg); pid > 0 {
					message = fmt.Sprintf("API unreachable (pid file lists %d)", pid)
				}
				lines = append(lines, renderStatusLine("PengyStream", statusError, message, colorize))
			default:
				lines = append(lines, renderStatusLine("PengyStream", statusWarn, apiErr.Error(), colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if apiErr == nil && len(jobs.Running)+len(jobs.Queued) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderJobs(jobs))
			}

			fmt.Fprintln(out)
			lines = renderSectionHeader("Checks", colorize)
			lines = append(lines, preflightLines(preflight.RunAll(cmd.Context(), cfg), colorize)...)
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
}

func fetchStatus(ctx context.Context, bind string) (api.HealthResponse, api.JobsResponse, error) {
	client, err := api.NewClient(bind)
	if err != nil {
		return api.HealthResponse{}, api.JobsResponse{}, err
	}
	health, err := client.Health(ctx)
	if err != nil {
		return api.HealthResponse{}, api.JobsResponse{}, err
	}
	jobs, err := client.Jobs(ctx)
	if err != nil {
		return health, api.JobsResponse{}, err
	}
	return health, jobs, nil
}

func renderJobs(jobs api.JobsResponse) string {
	rows := make([][]string, 0, len(jobs.Running)+len(jobs.Queued))
	for _, list := range [][]api.JobItem{jobs.Running, jobs.Queued} {
		for _, job := range list {
			pid := ""
			if job.PID > 0 {
				pid = fmt.Sprintf("%d", job.PID)
			}
			rows = append(rows, []string{job.Status, job.Action, job.Source, pid})
		}
	}
	return renderTable([]string{"Status", "Action", "Source", "PID"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
}

func loadKind(known bool, percent, threshold float64) statusKind {
	switch {
	case !known:
		return statusInfo
	case percent >= threshold:
		return statusWarn
	default:
		return statusOK
	}
}

func loadText(known bool, percent float64) string {
	if !known {
		return "not sampled"
	}
	return fmt.Sprintf("%.1f%%", percent)
}

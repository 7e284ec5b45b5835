package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pengystream/internal/daemon"
	"pengystream/internal/logging"
	"pengystream/internal/reconcile"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete orphaned outputs and list files awaiting conversion",
		Long: "Runs one reconciliation pass while the daemon is stopped. Orphaned partial and\n" +
			"converted files are deleted unless --dry-run is given. Unconverted sources are\n" +
			"only listed; the daemon converts them on its next start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := daemon.TryLock(cfg)
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return fmt.Errorf("daemon is running; its periodic sweep already covers %s", strings.Join(cfg.Paths.WatchDirs, ", "))
			}
			if err != nil {
				return err
			}
			defer lock.Unlock()

			logger := logging.NewNop()
			if verbose {
				if logger, err = logging.New(logging.Options{Level: "debug", Format: cfg.Logging.Format, OutputPaths: []string{"stderr"}}); err != nil {
					return err
				}
			}
			sweeper := reconcile.New(cfg.Paths.WatchDirs, cfg.Policy(), nil, logger, reconcile.WithDryRun(dryRun))
			result := sweeper.Sweep(cmd.Context())

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSweep(result))
			if len(result.Errors) > 0 {
				return fmt.Errorf("sweep finished with %d errors", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report orphans without deleting them")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log sweep decisions to stderr")
	return cmd
}

func renderSweep(result reconcile.Result) string {
	deleteLabel := "deleted"
	if result.DryRun {
		deleteLabel = "would delete"
	}
	rows := make([][]string, 0, len(result.Deleted)+len(result.Submitted)+len(result.Errors))
	for _, path := range result.Deleted {
		rows = append(rows, []string{deleteLabel, path})
	}
	for _, path := range result.Submitted {
		rows = append(rows, []string{"pending", path})
	}
	for _, e := range result.Errors {
		rows = append(rows, []string{"error", fmt.Sprintf("%s: %v", e.Path, e.Err)})
	}
	if len(rows) == 0 {
		return "Nothing to do"
	}
	return renderTable([]string{"Result", "Path"}, rows, nil)
}

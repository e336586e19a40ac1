package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"discback/internal/workflow"
)

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove old files from the configured purge directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cfg.Purge.Dirs) == 0 {
				fmt.Fprintln(out, "No purge directories configured")
				return nil
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			opts, err := ctx.runnerOptions(cmd.Context(), false)
			if err != nil {
				return err
			}

			report, runErr := workflow.NewPurger(cfg, logger, opts...).Run(cmd.Context(), dryRun)
			if report == nil {
				return runErr
			}
			if jsonOut {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
				return runErr
			}

			rows := make([][]string, 0, len(report.Dirs))
			for _, d := range report.Dirs {
				status := "purged"
				switch {
				case d.Skipped:
					status = "missing"
				case dryRun:
					status = "dry run"
				}
				rows = append(rows, []string{
					d.Path,
					fmt.Sprintf("%d", d.RetainDays),
					fmt.Sprintf("%d", d.Files),
					fmt.Sprintf("%d", d.Dirs),
					status,
				})
			}
			files, dirs := report.Totals()
			fmt.Fprintln(out, renderTable([]string{"Directory", "Retain days", "Files", "Dirs", "Status"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
				[]string{"Total", "", fmt.Sprintf("%d", files), fmt.Sprintf("%d", dirs), ""}))
			return runErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count what would be removed without deleting")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the purge report as JSON")
	return cmd
}

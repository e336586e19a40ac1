package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"discback/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, free space and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, ctx.configPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Media", statusInfo, fmt.Sprintf("%s on %s", cfg.Store.MediaType, cfg.Store.Device), colorize))
			fmt.Fprintln(out, renderStatusLine("Collect directories", statusInfo, fmt.Sprintf("%d", len(cfg.Collect.Dirs)), colorize))
			fmt.Fprintln(out, renderStatusLine("Pruning", statusInfo, yesNo(cfg.Store.Prune), colorize))
			fmt.Fprintln(out, renderStatusLine("Upload", statusInfo, yesNo(cfg.Upload.Enabled), colorize))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
}

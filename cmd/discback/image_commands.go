package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"discback/internal/image"
	"discback/internal/workflow"
)

func newImageCommand(ctx *commandContext) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Build or size the backup image",
	}
	imageCmd.AddCommand(newImageBuildCommand(ctx))
	imageCmd.AddCommand(newImageEstimateCommand(ctx))
	return imageCmd
}

func newImageBuildCommand(ctx *commandContext) *cobra.Command {
	var opts workflow.BuildOptions
	var listEntries bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Collect changed files and write an ISO image",
		Long: "Collect changed files from every configured directory, prune the set\n" +
			"when it does not fit the media, and write the image to the working\n" +
			"directory. The digest maps are only updated after a successful write.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(cmd, ctx, opts, listEntries, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Collect, estimate and prune without writing anything")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "Ignore saved digests and back up every file")
	cmd.Flags().BoolVar(&listEntries, "list", false, "List the image entries")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the run report as JSON")
	return cmd
}

func newImageEstimateCommand(ctx *commandContext) *cobra.Command {
	var full bool
	var listEntries bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Report the image size without pruning or writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(cmd, ctx, workflow.BuildOptions{Full: full, EstimateOnly: true}, listEntries, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Ignore saved digests and size every file")
	cmd.Flags().BoolVar(&listEntries, "list", false, "List the image entries")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the estimate as JSON")
	return cmd
}

func runImage(cmd *cobra.Command, ctx *commandContext, opts workflow.BuildOptions, listEntries, jsonOut bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if len(cfg.Collect.Dirs) == 0 {
		return fmt.Errorf("no collect directories configured; add [[collect.dirs]] to %s", ctx.configPath)
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	runnerOpts, err := ctx.runnerOptions(cmd.Context(), !opts.DryRun && !opts.EstimateOnly)
	if err != nil {
		return err
	}

	report, runErr := workflow.NewBuilder(cfg, logger, runnerOpts...).Run(cmd.Context(), opts)
	if report == nil {
		return runErr
	}
	if jsonOut {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
		return runErr
	}
	out := cmd.OutOrStdout()
	printImageReport(out, report)
	if listEntries && len(report.Entries) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, entriesTable(report.Entries))
	}
	return runErr
}

func printImageReport(out io.Writer, report *workflow.Report) {
	fmt.Fprintf(out, "Mode:        %s\n", report.Mode)
	if report.RunID != "" {
		fmt.Fprintf(out, "Run:         %s\n", report.RunID)
	}
	fmt.Fprintf(out, "Candidates:  %d (%d unchanged)\n", report.Candidates, report.Unchanged)
	if len(report.Entries) == 0 && report.EstimatedBytes == 0 {
		fmt.Fprintln(out, "Nothing changed since the last backup")
		return
	}
	fmt.Fprintf(out, "Entries:     %d (%s of file data)\n", len(report.Entries), formatBytes(report.FileBytes))
	fmt.Fprintf(out, "Estimated:   %s\n", formatBytes(report.EstimatedBytes))
	fmt.Fprintf(out, "Capacity:    %s on %s, %s used\n",
		formatBytes(report.CapacityBytes), report.MediaType, formatPercent(report.EstimatedBytes, report.CapacityBytes))
	if report.Capacity.Boundaries != nil {
		fmt.Fprintf(out, "Session:     appending after sector %d\n", report.Capacity.Boundaries.NextSessionStart)
	}
	if p := report.Prune; p != nil {
		fmt.Fprintf(out, "Pruned:      %s, dropped %d of %d files in %d attempts\n", p.State, p.Dropped, p.Kept+p.Dropped, p.Attempts)
		if p.Reason != "" {
			fmt.Fprintf(out, "             %s\n", p.Reason)
		}
	} else if !report.Fits() {
		fmt.Fprintln(out, "Pruned:      no (image does not fit)")
	}
	switch {
	case report.ImagePath != "":
		fmt.Fprintf(out, "Image:       %s\n", report.ImagePath)
	case report.DryRun:
		fmt.Fprintln(out, "Image:       not written (dry run)")
	}
	for _, u := range report.Uploads {
		fmt.Fprintf(out, "Uploaded:    %s (%s)\n", u.Key, formatBytes(u.Bytes))
	}
}

func entriesTable(entries []image.Entry) string {
	sizes, total := image.CalculateSizes(entries)
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		graft := e.Graft
		if graft == "" {
			graft = "/"
		}
		rows = append(rows, []string{e.Path, graft, formatBytes(sizes[e.Path])})
	}
	footer := []string{fmt.Sprintf("%d entries", len(entries)), "", formatBytes(total)}
	return renderTable([]string{"Path", "Graft", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}, footer)
}

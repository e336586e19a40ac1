package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"discback/internal/catalog"
	"discback/internal/config"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent backup and purge runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCatalog()
			if err != nil {
				return err
			}
			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				image := "-"
				if run.ImagePath != "" {
					image = filepath.Base(run.ImagePath)
				}
				rows = append(rows, []string{
					shortID(run.ID),
					string(run.Kind),
					run.Status,
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.Duration().Round(time.Second).String(),
					fmt.Sprintf("%d", run.Selected),
					image,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Run", "Kind", "Status", "Started", "Took", "Items", "Image"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}, nil))
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryFindCommand(ctx))
	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one run and the files placed in its image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCatalog()
			if err != nil {
				return err
			}
			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			files, err := store.Files(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, struct {
					Run   *catalog.Run         `json:"run"`
					Files []catalog.FileRecord `json:"files"`
				}{run, files})
			}
			out := cmd.OutOrStdout()
			printRun(out, run)
			if len(files) > 0 {
				rows := make([][]string, 0, len(files))
				var total int64
				for _, f := range files {
					rows = append(rows, []string{f.Path, f.Graft, formatBytes(f.Size)})
					total += f.Size
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable([]string{"Path", "Graft", "Size"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
					[]string{fmt.Sprintf("%d files", len(files)), "", formatBytes(total)}))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newHistoryFindCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "find PATH",
		Short: "Find the most recent image holding a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog()
			if err != nil {
				return err
			}
			run, err := store.LatestWithFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			if run == nil {
				return errors.New(path + " is not on any recorded image")
			}
			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}
}

func printRun(out io.Writer, run *catalog.Run) {
	fmt.Fprintf(out, "Run:         %s\n", run.ID)
	fmt.Fprintf(out, "Kind:        %s (%s)\n", run.Kind, run.Mode)
	fmt.Fprintf(out, "Status:      %s\n", run.Status)
	fmt.Fprintf(out, "Started:     %s\n", formatTime(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Took:        %s\n", run.Duration().Round(time.Second))
	}
	if run.Kind == catalog.KindBackup {
		if run.ImagePath != "" {
			fmt.Fprintf(out, "Image:       %s\n", run.ImagePath)
		}
		fmt.Fprintf(out, "Media:       %s, %s capacity\n", run.MediaType, formatBytes(run.CapacityBytes))
		fmt.Fprintf(out, "Estimated:   %s\n", formatBytes(run.EstimatedBytes))
		fmt.Fprintf(out, "Files:       %d of %d candidates (%d unchanged)\n", run.Selected, run.Candidates, run.Unchanged)
		if run.Pruned {
			fmt.Fprintf(out, "Pruned:      yes, %d dropped\n", run.Dropped)
		}
		if run.UploadKey != "" {
			fmt.Fprintf(out, "Uploaded:    %s\n", run.UploadKey)
		}
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:       %s\n", run.ErrorMessage)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

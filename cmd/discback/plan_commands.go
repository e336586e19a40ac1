package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"discback/internal/config"
	"discback/internal/fsset"
	"discback/internal/knapsack"
	"discback/internal/media"
	"discback/internal/units"
)

func newFitCommand(ctx *commandContext) *cobra.Command {
	var capacityFlag string
	var strategyFlag string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "fit DIR",
		Short: "Show which files of a directory fit a capacity",
		Long: "Walk DIR and select the files that fit the capacity with a knapsack\n" +
			"strategy. Nothing is written. Without --capacity the configured media\n" +
			"type and capacity percent are used.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			capacity, err := resolveCapacity(cfg, capacityFlag)
			if err != nil {
				return err
			}
			strategy, err := knapsack.ParseStrategy(firstNonEmpty(strategyFlag, cfg.Store.Strategy))
			if err != nil {
				return err
			}
			list, err := walkBackupDir(cfg, logger, args[0])
			if err != nil {
				return err
			}
			sizes := list.SizeMap()
			result, err := list.GenerateFitted(capacity, strategy)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, fitOutput{
					Strategy:   string(strategy),
					Capacity:   capacity,
					Candidates: len(sizes),
					Total:      knapsack.Total(sizes, list.Paths()),
					Chosen:     result.Chosen,
					Used:       result.Used,
				})
			}

			rows := make([][]string, 0, len(result.Chosen))
			for i, path := range result.Chosen {
				rows = append(rows, []string{fmt.Sprintf("%d", i+1), path, formatBytes(sizes[path])})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Strategy:    %s\n", strategy)
			fmt.Fprintf(out, "Capacity:    %s\n", formatBytes(capacity))
			fmt.Fprintf(out, "Candidates:  %d files, %s\n", len(sizes), formatBytes(knapsack.Total(sizes, list.Paths())))
			fmt.Fprintf(out, "Selected:    %d files, %s (%s of capacity)\n",
				len(result.Chosen), formatBytes(result.Used), formatPercent(result.Used, capacity))
			if len(rows) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable([]string{"#", "Path", "Size"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight},
					[]string{"", "Total", formatBytes(result.Used)}))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&capacityFlag, "capacity", "", "Capacity such as 650MiB or 4.4GiB")
	cmd.Flags().StringVarP(&strategyFlag, "strategy", "s", "", "Selection strategy: first, best, worst or alternate (defaults to store.strategy)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the selection as JSON")
	return cmd
}

type fitOutput struct {
	Strategy   string   `json:"strategy"`
	Capacity   int64    `json:"capacity"`
	Candidates int      `json:"candidates"`
	Total      int64    `json:"total"`
	Chosen     []string `json:"chosen"`
	Used       int64    `json:"used"`
}

func newSpanCommand(ctx *commandContext) *cobra.Command {
	spanCmd := &cobra.Command{
		Use:   "span",
		Short: "Plan backups that need more than one disc",
	}
	spanCmd.AddCommand(newSpanPlanCommand(ctx))
	return spanCmd
}

func newSpanPlanCommand(ctx *commandContext) *cobra.Command {
	var capacityFlag string
	var strategyFlag string
	var cushion int
	var showFiles bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "plan DIR",
		Short: "Split a directory into disc-sized sets",
		Long: "Walk DIR and split its files into sets that each fit one disc. The\n" +
			"capacity is reduced by the cushion percent to leave room for\n" +
			"filesystem overhead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			capacity, err := resolveCapacity(cfg, capacityFlag)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("cushion") {
				cushion = cfg.Span.CushionPercent
			}
			if cushion < 0 || cushion >= 100 {
				return fmt.Errorf("cushion must be between 0 and 99, got %d", cushion)
			}
			capacity = capacity * int64(100-cushion) / 100
			strategy, err := knapsack.ParseStrategy(firstNonEmpty(strategyFlag, cfg.Span.Strategy))
			if err != nil {
				return err
			}
			list, err := walkBackupDir(cfg, logger, args[0])
			if err != nil {
				return err
			}
			spans, err := list.GenerateSpan(capacity, strategy)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, spans)
			}
			out := cmd.OutOrStdout()
			if len(spans) == 0 {
				fmt.Fprintln(out, "No files to plan")
				return nil
			}
			rows := make([][]string, 0, len(spans))
			var total int64
			var files int
			for i, span := range spans {
				rows = append(rows, []string{
					fmt.Sprintf("%d", i+1),
					fmt.Sprintf("%d", len(span.Paths)),
					formatBytes(span.Size),
					fmt.Sprintf("%.1f%%", span.Utilization),
				})
				total += span.Size
				files += len(span.Paths)
			}
			fmt.Fprintf(out, "Strategy:    %s\n", strategy)
			fmt.Fprintf(out, "Per disc:    %s after %d%% cushion\n", formatBytes(capacity), cushion)
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable([]string{"Disc", "Files", "Size", "Utilization"}, rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
				[]string{"", fmt.Sprintf("%d", files), formatBytes(total), ""}))
			if showFiles {
				for i, span := range spans {
					fmt.Fprintf(out, "\nDisc %d:\n", i+1)
					for _, path := range span.Paths {
						fmt.Fprintf(out, "  %s\n", path)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&capacityFlag, "capacity", "", "Capacity per disc such as 650MiB or 4.4GiB")
	cmd.Flags().StringVarP(&strategyFlag, "strategy", "s", "", "Selection strategy (defaults to span.strategy)")
	cmd.Flags().IntVar(&cushion, "cushion", 0, "Percent of each disc to leave free (defaults to span.cushion_percent)")
	cmd.Flags().BoolVar(&showFiles, "files", false, "List the files on each disc")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the plan as JSON")
	return cmd
}

// resolveCapacity parses an explicit capacity or falls back to the
// configured media type with its capacity percent applied.
func resolveCapacity(cfg *config.Config, flagValue string) (int64, error) {
	if strings.TrimSpace(flagValue) != "" {
		capacity, err := units.ParseSize(flagValue)
		if err != nil {
			return 0, err
		}
		if capacity <= 0 {
			return 0, fmt.Errorf("capacity must be positive, got %q", flagValue)
		}
		return capacity, nil
	}
	def, err := media.Lookup(cfg.Store.MediaType)
	if err != nil {
		return 0, err
	}
	return def.Capacity(nil).Limit(cfg.Store.CapacityPercent), nil
}

func walkBackupDir(cfg *config.Config, logger *slog.Logger, dir string) (*fsset.BackupList, error) {
	path, err := config.ExpandPath(dir)
	if err != nil {
		return nil, err
	}
	list := fsset.NewBackupList(logger)
	list.IgnoreFile = cfg.Collect.IgnoreFile
	list.ExcludePaths = cfg.Collect.ExcludePaths
	list.ExcludePatterns = cfg.Collect.ExcludePatterns
	if _, err := list.AddDirContents(path, fsset.DefaultWalk); err != nil {
		return nil, err
	}
	return list, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

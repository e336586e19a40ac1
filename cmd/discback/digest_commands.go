package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"discback/internal/config"
	"discback/internal/digest"
)

func newDigestCommand(ctx *commandContext) *cobra.Command {
	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Inspect or reset the saved content digests",
	}
	digestCmd.AddCommand(newDigestShowCommand(ctx))
	digestCmd.AddCommand(newDigestResetCommand(ctx))
	return digestCmd
}

type digestSummary struct {
	Dir      string    `json:"dir"`
	Path     string    `json:"path"`
	Entries  int       `json:"entries"`
	Modified time.Time `json:"modified,omitzero"`
}

func newDigestShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show [DIR]",
		Short: "Summarise every digest map, or list the entries for one collect directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				dir, err := resolveCollectDir(cfg, args[0])
				if err != nil {
					return err
				}
				m := digest.NewStore(cfg.DigestPath(dir), logger).Load()
				if jsonOut {
					return writeJSON(cmd, m)
				}
				keys := m.Keys()
				rows := make([][]string, 0, len(keys))
				for _, path := range keys {
					rows = append(rows, []string{path, shortDigest(m[path])})
				}
				fmt.Fprintf(out, "Digest map: %s (%s)\n", cfg.DigestPath(dir), digest.Algorithm)
				fmt.Fprintln(out, renderTable([]string{"Path", "Digest"}, rows, nil,
					[]string{fmt.Sprintf("%d entries", len(keys)), ""}))
				return nil
			}

			summaries := make([]digestSummary, 0, len(cfg.Collect.Dirs))
			for _, dir := range cfg.Collect.Dirs {
				store := digest.NewStore(cfg.DigestPath(dir.Path), logger)
				summary := digestSummary{Dir: dir.Path, Path: store.Path(), Entries: len(store.Load())}
				if info, err := os.Stat(store.Path()); err == nil {
					summary.Modified = info.ModTime()
				}
				summaries = append(summaries, summary)
			}
			if jsonOut {
				return writeJSON(cmd, summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No collect directories configured")
				return nil
			}
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{s.Dir, fmt.Sprintf("%d", s.Entries), formatTime(s.Modified), s.Path})
			}
			fmt.Fprintln(out, renderTable([]string{"Collect directory", "Entries", "Saved", "Digest file"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft}, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newDigestResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [DIR]",
		Short: "Forget saved digests so the next build backs up every file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			dirs := make([]string, 0, len(cfg.Collect.Dirs))
			if len(args) == 1 {
				dir, err := resolveCollectDir(cfg, args[0])
				if err != nil {
					return err
				}
				dirs = append(dirs, dir)
			} else {
				for _, d := range cfg.Collect.Dirs {
					dirs = append(dirs, d.Path)
				}
			}
			out := cmd.OutOrStdout()
			for _, dir := range dirs {
				if err := digest.NewStore(cfg.DigestPath(dir), logger).Reset(); err != nil {
					return err
				}
				fmt.Fprintf(out, "Reset digest map for %s\n", dir)
			}
			return nil
		},
	}
}

// resolveCollectDir expands arg and checks that it is a configured collect
// directory.
func resolveCollectDir(cfg *config.Config, arg string) (string, error) {
	path, err := config.ExpandPath(arg)
	if err != nil {
		return "", err
	}
	if !slices.ContainsFunc(cfg.Collect.Dirs, func(d config.CollectDir) bool { return d.Path == path }) {
		return "", errors.New(path + " is not a configured collect directory")
	}
	return path, nil
}

func shortDigest(sum string) string {
	if len(sum) > 16 {
		return sum[:16]
	}
	return sum
}

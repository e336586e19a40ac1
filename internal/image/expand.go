package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"discback/internal/fsset"
	"discback/internal/logging"
	"discback/internal/services"
	"discback/internal/units"
)

// Expand flattens every directory entry into one entry per file, symlink,
// and empty subdirectory below it. Each leaf keeps its position: its graft is
// the directory's graft joined with the leaf's parent path relative to the
// directory, so /data stored as b/data places /data/sub/file.txt at
// b/data/sub/file.txt. Empty subdirectories get a graft ending in their own
// name. File entries pass through and vanished entries are dropped.
func (img *Image) Expand(entries []Entry) ([]Entry, error) {
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		info, err := os.Stat(entry.Path)
		if err != nil {
			img.logger.Debug("dropping vanished entry", logging.String("path", entry.Path), logging.Error(err))
			continue
		}
		if !info.IsDir() {
			out[entry.Path] = entry.Graft
			continue
		}
		leaves, err := img.expandDir(entry)
		if err != nil {
			return nil, err
		}
		if len(leaves) == 0 {
			// An empty top-level directory stands for itself.
			out[entry.Path] = entry.Graft
			continue
		}
		for _, leaf := range leaves {
			out[leaf.Path] = leaf.Graft
		}
	}
	return toEntries(out), nil
}

func (img *Image) expandDir(entry Entry) ([]Entry, error) {
	list := fsset.NewList(img.logger)
	if _, err := list.AddDirContents(entry.Path, fsset.WalkOptions{Recursive: true}); err != nil {
		return nil, fmt.Errorf("expand %s: %w", entry.Path, err)
	}
	var leaves []Entry
	for item := range list.All() {
		rel, err := filepath.Rel(entry.Path, item)
		if err != nil {
			return nil, fmt.Errorf("relative path of %s: %w", item, err)
		}
		parent := filepath.Dir(rel)
		if parent == "." {
			parent = ""
		}
		switch fsset.Classify(item) {
		case fsset.KindFile, fsset.KindLink:
			leaves = append(leaves, Entry{Path: item, Graft: joinGraft(entry.Graft, parent)})
		case fsset.KindDir:
			if isEmptyDir(item) {
				leaves = append(leaves, Entry{Path: item, Graft: joinGraft(entry.Graft, parent, filepath.Base(item))})
			}
		}
	}
	return leaves, nil
}

func isEmptyDir(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	return err != nil && len(names) == 0
}

// CalculateSizes returns the byte cost of each entry and the total of the
// regular files. Symlinks and directories cost nothing but are kept so
// pruning never drops a structural placeholder. Missing paths are left out.
func CalculateSizes(entries []Entry) (map[string]int64, int64) {
	sizes := make(map[string]int64, len(entries))
	var total int64
	for _, entry := range entries {
		item, ok := fsset.Describe(entry.Path)
		if !ok {
			continue
		}
		sizes[entry.Path] = item.Size
		total += item.Size
	}
	return sizes, total
}

// BuildEntries returns the entries whose path is in chosen, keeping their
// grafts. Chosen paths that are not entries are ignored.
func BuildEntries(entries []Entry, chosen []string) []Entry {
	keep := make(map[string]struct{}, len(chosen))
	for _, path := range chosen {
		keep[path] = struct{}{}
	}
	out := make([]Entry, 0, len(chosen))
	for _, entry := range entries {
		if _, ok := keep[entry.Path]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// parseSizeOutput reads the sector count printed by mkisofs -print-size.
func parseSizeOutput(output []byte) (int64, error) {
	lines := strings.Split(strings.TrimRight(string(output), "\r\n"), "\n")
	if len(lines) != 1 {
		return 0, services.Wrap(services.ErrExternalTool, "image", "estimate size",
			fmt.Sprintf("expected one line of output, got %d", len(lines)), nil)
	}
	sectors, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil || sectors < 0 {
		return 0, services.Wrap(services.ErrExternalTool, "image", "estimate size",
			fmt.Sprintf("unable to parse output %q", lines[0]), err)
	}
	return units.SectorsToBytes(sectors), nil
}

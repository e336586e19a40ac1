package workflow

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"discback/internal/config"
	"discback/internal/digest"
	"discback/internal/fsset"
	"discback/internal/image"
	"discback/internal/logging"
	"discback/internal/services"
)

// target tracks one collect directory through a run so its digest map can
// be saved once the image is written.
type target struct {
	dir     config.CollectDir
	store   *digest.Store
	current digest.Map
	added   []string
}

// collect enumerates every collect directory, filters unchanged files, and
// adds the rest to img.
func (b *Builder) collect(ctx context.Context, logger *slog.Logger, img *image.Image, full bool, report *Report) ([]*target, error) {
	targets := make([]*target, 0, len(b.cfg.Collect.Dirs))
	for _, dir := range b.cfg.Collect.Dirs {
		dirCtx := services.WithTarget(ctx, dir.Path)
		t, err := b.collectDir(dirCtx, logging.WithContext(dirCtx, b.logger), img, dir, full, report)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	logger.Info("collection complete",
		logging.Int("candidates", report.Candidates),
		logging.Int("unchanged", report.Unchanged),
		logging.Int("entries", img.Len()))
	return targets, nil
}

func (b *Builder) collectDir(ctx context.Context, logger *slog.Logger, img *image.Image, dir config.CollectDir, full bool, report *Report) (*target, error) {
	list := fsset.NewBackupList(logger)
	list.IgnoreFile = b.cfg.Collect.IgnoreFile
	list.ExcludeLinks = dir.ExcludeLinks
	list.ExcludePaths = slices.Concat(b.cfg.Collect.ExcludePaths, dir.ExcludePaths)
	list.ExcludePatterns = slices.Concat(b.cfg.Collect.ExcludePatterns, dir.ExcludePatterns)

	if _, err := list.AddDirContents(dir.Path, fsset.WalkOptions{Recursive: dir.IsRecursive()}); err != nil {
		return nil, err
	}
	report.Candidates += list.Len()

	t := &target{dir: dir, store: digest.NewStore(b.cfg.DigestPath(dir.Path), logger)}
	prior := digest.Map{}
	if !full {
		prior = t.store.Load()
	}
	removed, current, err := list.RemoveUnchanged(ctx, prior, true)
	if err != nil {
		return nil, err
	}
	report.Unchanged += removed
	t.current = current

	for p := range list.All() {
		info, err := os.Lstat(p)
		if err != nil || !info.Mode().IsRegular() {
			// Links and files that vanished since the walk are not placed.
			logger.Debug("skipping non-regular entry", logging.String("path", p))
			continue
		}
		// Nested collect directories list the same file twice; the last
		// directory decides its graft.
		graft := fileGraft(dir, b.cfg.Image.GraftPoint, p)
		if err := img.AddEntry(p, graft, true, false); err != nil {
			return nil, err
		}
		t.added = append(t.added, p)
	}
	logger.Debug("collect directory processed",
		logging.Int("candidates", list.Len()+removed),
		logging.Int("unchanged", removed),
		logging.Int("added", len(t.added)))
	return t, nil
}

// fileGraft places a file under graft/basename(dir)/reldir so each collect
// directory keeps its own tree in the image.
func fileGraft(dir config.CollectDir, defaultGraft, file string) string {
	graft := dir.Graft
	if graft == "" {
		graft = defaultGraft
	}
	rel, err := filepath.Rel(dir.Path, filepath.Dir(file))
	if err != nil || rel == "." {
		rel = ""
	}
	base := filepath.Base(filepath.Clean(dir.Path))
	if base == string(filepath.Separator) {
		base = ""
	}
	joined := strings.Trim(path.Join(filepath.ToSlash(graft), base, filepath.ToSlash(rel)), "/")
	if joined == "." {
		return ""
	}
	return joined
}

// saveDigests persists the digest map of every target. Files that were
// collected but dropped from the image are left out of the map so the next
// run treats them as changed. With a nil img every collected file counts.
func (b *Builder) saveDigests(logger *slog.Logger, targets []*target, img *image.Image, report *Report) error {
	var placed map[string]struct{}
	if img != nil {
		placed = make(map[string]struct{}, img.Len())
		for _, e := range img.Entries() {
			placed[e.Path] = struct{}{}
		}
	}
	for _, t := range targets {
		saved := maps.Clone(t.current)
		if placed != nil {
			for _, p := range t.added {
				if _, ok := placed[p]; !ok {
					delete(saved, p)
				}
			}
		}
		if err := t.store.Save(saved); err != nil {
			return services.Wrap(services.ErrExternalTool, "workflow", "save digest", t.store.Path(), err)
		}
		report.DigestPaths = append(report.DigestPaths, t.store.Path())
		logger.Debug("digest map saved",
			logging.String("path", t.store.Path()),
			logging.Int("entries", len(saved)))
	}
	return nil
}

package fsset

import (
	"cmp"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"discback/internal/logging"
)

// PurgeList collects the contents of directories to clean out. The starting
// directory of a walk is never an entry.
type PurgeList struct {
	*List

	now func() time.Time
}

// NewPurgeList returns an empty purge list.
func NewPurgeList(logger *slog.Logger) *PurgeList {
	return &PurgeList{List: newList(logger, variantPurge), now: time.Now}
}

// SetClock replaces the time source used to judge file age.
func (p *PurgeList) SetClock(now func() time.Time) {
	p.now = now
}

// RemoveYoungFiles drops regular files modified less than daysOld days ago,
// so only older files remain eligible. Directories and symlinks are kept.
func (p *PurgeList) RemoveYoungFiles(daysOld int) int {
	if daysOld <= 0 {
		return 0
	}
	cutoff := p.now().Add(-time.Duration(daysOld) * 24 * time.Hour)
	return p.filter(func(path string) bool {
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
		return info.ModTime().After(cutoff)
	})
}

// PurgeItems deletes the entries from disk. Files and symlinks go first,
// then directories from the deepest up. A directory that is not empty once
// its listed contents are gone is left in place. Failures are logged and
// skipped.
func (p *PurgeList) PurgeItems() (files, dirs int) {
	var directories []string
	for _, path := range p.entries {
		switch Classify(path) {
		case KindMissing:
			continue
		case KindDir:
			directories = append(directories, path)
			continue
		}
		if err := os.Remove(path); err != nil {
			p.logger.Warn("purge failed to remove file",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "purge_remove_failed"))
			continue
		}
		files++
	}

	slices.SortStableFunc(directories, func(a, b string) int {
		return cmp.Compare(depth(b), depth(a))
	})
	for _, path := range directories {
		if err := os.Remove(path); err != nil {
			p.logger.Debug("purge left directory in place", logging.String("path", path), logging.Error(err))
			continue
		}
		dirs++
	}
	p.logger.Info("purge complete",
		logging.Int("files_removed", files),
		logging.Int("dirs_removed", dirs))
	return files, dirs
}

func depth(path string) int {
	return strings.Count(path, string(os.PathSeparator))
}

package fsset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"discback/internal/logging"
	"discback/internal/services"
)

// WalkOptions tune AddDirContents.
type WalkOptions struct {
	// Recursive descends into subdirectories; otherwise they are added as
	// leaves.
	Recursive bool
	// IncludeRoot adds the starting directory itself. Purge lists never do.
	IncludeRoot bool
}

// DefaultWalk recurses and includes the root.
var DefaultWalk = WalkOptions{Recursive: true, IncludeRoot: true}

// AddDirContents adds the contents of a directory, applying exclusions at
// every directory boundary before descending. An excluded directory's
// contents are never visited. Symlinks to directories are added as leaves
// and never followed; broken symlinks are skipped. Subdirectories that
// cannot be read are logged and skipped.
func (l *List) AddDirContents(path string, opts WalkOptions) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, services.Wrap(services.ErrNotFound, "fsset", "add dir contents", path, err)
	}
	if !info.IsDir() {
		return 0, services.Wrap(services.ErrInvalidArgument, "fsset", "add dir contents", fmt.Sprintf("%s is not a directory", path), nil)
	}
	if l.variant == variantPurge {
		opts.IncludeRoot = false
	}
	entries, skip, err := l.openDir(path)
	if err != nil {
		return 0, err
	}
	if skip {
		return 0, nil
	}
	return l.walkDir(path, entries, opts, opts.IncludeRoot)
}

// openDir applies the directory-level exclusions and reads its entries.
func (l *List) openDir(path string) ([]fs.DirEntry, bool, error) {
	excluded, err := l.excluded(path)
	if err != nil {
		return nil, false, err
	}
	if excluded {
		l.logger.Debug("excluded directory", logging.String("path", path))
		return nil, true, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, false, fmt.Errorf("read directory %s: %w", path, err)
	}
	if l.IgnoreFile != "" {
		for _, entry := range entries {
			if entry.Name() == l.IgnoreFile {
				l.logger.Debug("directory carries ignore file",
					logging.String("path", path),
					logging.String("ignore_file", l.IgnoreFile))
				return nil, true, nil
			}
		}
	}
	return entries, false, nil
}

func (l *List) walkDir(path string, entries []fs.DirEntry, opts WalkOptions, includeSelf bool) (int, error) {
	added := 0
	if includeSelf {
		ok, err := l.AddDir(path)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}

	// os.ReadDir returns entries sorted by name.
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		n, err := l.walkEntry(child, entry, opts)
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}

func (l *List) walkEntry(child string, entry fs.DirEntry, opts WalkOptions) (int, error) {
	mode := entry.Type()
	switch {
	case mode&fs.ModeSymlink != 0:
		target, err := os.Stat(child)
		if err != nil {
			// Broken symlinks are skipped.
			return 0, nil
		}
		if target.IsDir() {
			return l.addQuiet(l.AddDir, child)
		}
		return l.addQuiet(l.AddFile, child)
	case mode.IsDir():
		if !opts.Recursive {
			return l.addQuiet(l.AddDir, child)
		}
		entries, skip, err := l.openDir(child)
		if err != nil {
			if services.Retryable(err) {
				l.logger.Warn("skipping unreadable directory",
					logging.String("path", child),
					logging.Error(err),
					logging.String(logging.FieldEventType, "directory_unreadable"))
				return 0, nil
			}
			return 0, err
		}
		if skip {
			return 0, nil
		}
		return l.walkDir(child, entries, opts, true)
	default:
		return l.addQuiet(l.AddFile, child)
	}
}

// addQuiet adds one entry found during a walk. Entries that vanish between
// listing and stat are logged and skipped; invalid patterns still fail.
func (l *List) addQuiet(add func(string) (bool, error), path string) (int, error) {
	ok, err := add(path)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || services.Retryable(err) {
			l.logger.Debug("skipping entry", logging.String("path", path), logging.Error(err))
			return 0, nil
		}
		return 0, err
	}
	if ok {
		return 1, nil
	}
	return 0, nil
}

package fsset

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"discback/internal/logging"
	"discback/internal/services"
)

type variant int

const (
	variantGeneric variant = iota
	variantBackup
	variantPurge
)

// List is an ordered, duplicate-free sequence of absolute paths. Exclusions
// are applied when items are added, never after the fact.
//
// Exclude patterns are regular expressions matched against the whole path;
// ExcludeBasenamePatterns match only the final path element. A directory
// holding IgnoreFile is skipped along with everything below it.
type List struct {
	ExcludeFiles            bool
	ExcludeDirs             bool
	ExcludeLinks            bool
	ExcludePaths            []string
	ExcludePatterns         []string
	ExcludeBasenamePatterns []string
	IgnoreFile              string

	logger   *slog.Logger
	variant  variant
	entries  []string
	index    map[string]struct{}
	patterns map[string]*regexp.Regexp
}

// NewList returns an empty list with no exclusions.
func NewList(logger *slog.Logger) *List {
	return newList(logger, variantGeneric)
}

func newList(logger *slog.Logger, v variant) *List {
	return &List{
		logger:   logging.NewComponentLogger(logger, "fsset"),
		variant:  v,
		index:    make(map[string]struct{}),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Len returns the number of entries.
func (l *List) Len() int { return len(l.entries) }

// Contains reports whether path is present.
func (l *List) Contains(path string) bool {
	_, ok := l.index[path]
	return ok
}

// All iterates the entries in list order.
func (l *List) All() iter.Seq[string] {
	return slices.Values(l.entries)
}

// Paths returns a copy of the entries.
func (l *List) Paths() []string {
	return slices.Clone(l.entries)
}

// Append adds paths without existence checks or exclusions. Duplicates are
// ignored. It exists for callers that already hold a vetted set.
func (l *List) Append(paths ...string) {
	for _, path := range paths {
		l.push(path)
	}
}

// AddFile adds a file, or a symlink to one, subject to the exclusions. It
// fails when the path does not exist or is not a file.
func (l *List) AddFile(path string) (bool, error) {
	info, linked, err := statEntry(path)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, services.Wrap(services.ErrInvalidArgument, "fsset", "add file", fmt.Sprintf("%s is a directory", path), nil)
	}
	if l.ExcludeLinks && linked {
		return false, nil
	}
	if l.ExcludeFiles && !linked {
		return false, nil
	}
	excluded, err := l.excluded(path)
	if err != nil || excluded {
		return false, err
	}
	return l.push(path), nil
}

// AddDir adds a directory, or a symlink to one, subject to the exclusions.
// The ignore file does not apply here, only to AddDirContents.
func (l *List) AddDir(path string) (bool, error) {
	info, linked, err := statEntry(path)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, services.Wrap(services.ErrInvalidArgument, "fsset", "add dir", fmt.Sprintf("%s is not a directory", path), nil)
	}
	switch l.variant {
	case variantBackup:
		// Only a symlinked directory is a backup unit; it is stored as a file.
		if !linked {
			return false, nil
		}
		if l.ExcludeLinks {
			return false, nil
		}
		excluded, err := l.excluded(path)
		if err != nil || excluded {
			return false, err
		}
		return l.push(path), nil
	default:
		if l.ExcludeLinks && linked {
			return false, nil
		}
		if l.ExcludeDirs && !linked {
			return false, nil
		}
		excluded, err := l.excluded(path)
		if err != nil || excluded {
			return false, err
		}
		return l.push(path), nil
	}
}

func (l *List) push(path string) bool {
	if _, ok := l.index[path]; ok {
		return false
	}
	l.index[path] = struct{}{}
	l.entries = append(l.entries, path)
	return true
}

func (l *List) excluded(path string) (bool, error) {
	if slices.Contains(l.ExcludePaths, path) {
		return true, nil
	}
	for _, pattern := range l.ExcludePatterns {
		re, err := l.compile(pattern)
		if err != nil {
			return false, err
		}
		if re.MatchString(path) {
			return true, nil
		}
	}
	base := filepath.Base(path)
	for _, pattern := range l.ExcludeBasenamePatterns {
		re, err := l.compile(pattern)
		if err != nil {
			return false, err
		}
		if re.MatchString(base) {
			return true, nil
		}
	}
	return false, nil
}

// compile anchors pattern to the whole input and caches the result.
func (l *List) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := l.patterns[pattern]; ok {
		return re, nil
	}
	re, err := compileAnchored(pattern)
	if err != nil {
		return nil, err
	}
	l.patterns[pattern] = re
	return re, nil
}

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidArgument, "fsset", "compile pattern", fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	return re, nil
}

// statEntry follows a final symlink and reports whether one was followed.
func statEntry(path string) (fs.FileInfo, bool, error) {
	linfo, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, services.Wrap(services.ErrNotFound, "fsset", "stat", path, err)
		}
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}
	if linfo.Mode()&fs.ModeSymlink == 0 {
		return linfo, false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, true, services.Wrap(services.ErrNotFound, "fsset", "stat", "broken symlink "+path, err)
	}
	return info, true, nil
}

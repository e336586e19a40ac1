package fsset

import (
	"os"
	"slices"
)

// RemoveFiles drops regular files whose path matches pattern. An empty
// pattern matches everything. Symlinks are not files here.
func (l *List) RemoveFiles(pattern string) (int, error) {
	return l.removeKind(pattern, KindFile)
}

// RemoveDirs drops real directories whose path matches pattern.
func (l *List) RemoveDirs(pattern string) (int, error) {
	return l.removeKind(pattern, KindDir)
}

// RemoveLinks drops symlinks whose path matches pattern.
func (l *List) RemoveLinks(pattern string) (int, error) {
	return l.removeKind(pattern, KindLink)
}

// RemoveMatch drops every entry whose path matches pattern.
func (l *List) RemoveMatch(pattern string) (int, error) {
	re, err := l.compile(pattern)
	if err != nil {
		return 0, err
	}
	return l.filter(func(path string) bool { return re.MatchString(path) }), nil
}

// RemoveInvalid drops entries that no longer resolve to anything, including
// broken symlinks.
func (l *List) RemoveInvalid() int {
	return l.filter(func(path string) bool {
		_, err := os.Stat(path)
		return err != nil
	})
}

// Normalize sorts the entries.
func (l *List) Normalize() {
	slices.Sort(l.entries)
}

// Verify reports whether every entry still exists.
func (l *List) Verify() bool {
	for _, path := range l.entries {
		if _, err := os.Lstat(path); err != nil {
			return false
		}
	}
	return true
}

func (l *List) removeKind(pattern string, kind Kind) (int, error) {
	match := func(string) bool { return true }
	if pattern != "" {
		re, err := l.compile(pattern)
		if err != nil {
			return 0, err
		}
		match = re.MatchString
	}
	return l.filter(func(path string) bool {
		return Classify(path) == kind && match(path)
	}), nil
}

// filter removes entries for which drop returns true and keeps the order of
// the rest.
func (l *List) filter(drop func(string) bool) int {
	kept := l.entries[:0]
	removed := 0
	for _, path := range l.entries {
		if drop(path) {
			delete(l.index, path)
			removed++
			continue
		}
		kept = append(kept, path)
	}
	clear(l.entries[len(kept):])
	l.entries = kept
	return removed
}

// replace swaps the entries for paths, dropping duplicates.
func (l *List) replace(paths []string) {
	l.entries = nil
	l.index = make(map[string]struct{}, len(paths))
	for _, path := range paths {
		l.push(path)
	}
}

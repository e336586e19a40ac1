package fsset

import (
	"io/fs"
	"os"
)

// Kind classifies a path without following a final symlink.
type Kind int

const (
	KindMissing Kind = iota
	KindFile
	KindDir
	KindLink
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	case KindLink:
		return "symlink"
	case KindOther:
		return "other"
	default:
		return "missing"
	}
}

// Classify reports what lives at path.
func Classify(path string) Kind {
	info, err := os.Lstat(path)
	if err != nil {
		return KindMissing
	}
	return kindOf(info.Mode())
}

func kindOf(mode fs.FileMode) Kind {
	switch {
	case mode&fs.ModeSymlink != 0:
		return KindLink
	case mode.IsDir():
		return KindDir
	case mode.IsRegular():
		return KindFile
	default:
		return KindOther
	}
}

// Item is one enumerated path with its byte cost. Directories and symlinks
// cost nothing.
type Item struct {
	Path string
	Size int64
	Kind Kind
}

// Describe stats path and returns its Item. ok is false when the path is gone.
func Describe(path string) (Item, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return Item{}, false
	}
	item := Item{Path: path, Kind: kindOf(info.Mode())}
	if item.Kind == KindFile {
		item.Size = info.Size()
	}
	return item, true
}

package fsset_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discback/internal/fsset"
)

func age(t *testing.T, path string, days int) {
	t.Helper()
	when := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, when, when))
}

func TestPurgeListRemovesOldContents(t *testing.T) {
	root := t.TempDir()
	old := writeFile(t, filepath.Join(root, "old.txt"), 1)
	young := writeFile(t, filepath.Join(root, "young.txt"), 1)
	oldNested := writeFile(t, filepath.Join(root, "dir", "old2.txt"), 1)
	youngNested := writeFile(t, filepath.Join(root, "keep", "young2.txt"), 1)
	age(t, old, 10)
	age(t, oldNested, 10)

	list := fsset.NewPurgeList(nil)
	_, err := list.AddDirContents(root, fsset.DefaultWalk)
	require.NoError(t, err)
	assert.False(t, list.Contains(root), "the purge root is never an entry")
	assert.Equal(t, 6, list.Len())

	assert.Equal(t, 2, list.RemoveYoungFiles(5))
	assert.Equal(t, []string{"dir", "dir/old2.txt", "keep", "old.txt"}, rel(t, root, list.Paths()))

	files, dirs := list.PurgeItems()
	assert.Equal(t, 2, files)
	assert.Equal(t, 1, dirs)

	assert.NoFileExists(t, old)
	assert.NoDirExists(t, filepath.Join(root, "dir"))
	assert.FileExists(t, young)
	assert.FileExists(t, youngNested)
	assert.DirExists(t, root)
}

func TestRemoveYoungFilesKeepsLinksAndZeroDays(t *testing.T) {
	root := t.TempDir()
	target := writeFile(t, filepath.Join(root, "target"), 1)
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link")))

	list := fsset.NewPurgeList(nil)
	_, err := list.AddDirContents(root, fsset.DefaultWalk)
	require.NoError(t, err)

	assert.Zero(t, list.RemoveYoungFiles(0))
	assert.Equal(t, 1, list.RemoveYoungFiles(1))
	assert.Equal(t, []string{"link"}, rel(t, root, list.Paths()))
}

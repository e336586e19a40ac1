package fsset_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discback/internal/fsset"
	"discback/internal/knapsack"
	"discback/internal/services"
)

func TestBackupListHoldsOnlyFilesAndLinks(t *testing.T) {
	root := buildTree(t)
	list := fsset.NewBackupList(nil)
	list.IgnoreFile = ".cbignore"

	_, err := list.AddDirContents(root, fsset.DefaultWalk)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.log", "link-dir", "link-file", "sub/c.txt", "sub/deep/d.txt"}, rel(t, root, list.Paths()))

	ok, err := list.AddDir(filepath.Join(root, "empty"))
	require.NoError(t, err)
	assert.False(t, ok, "a real directory is never a backup unit")

	sizes := list.SizeMap()
	assert.Equal(t, int64(10), sizes[filepath.Join(root, "a.txt")])
	assert.Equal(t, int64(0), sizes[filepath.Join(root, "link-dir")])
	assert.Equal(t, int64(0), sizes[filepath.Join(root, "link-file")])
	assert.Equal(t, int64(100), list.TotalSize())
}

func TestBackupListExcludeLinksDropsSymlinkedDirs(t *testing.T) {
	root := buildTree(t)
	list := fsset.NewBackupList(nil)
	list.ExcludeLinks = true
	list.IgnoreFile = ".cbignore"

	_, err := list.AddDirContents(root, fsset.DefaultWalk)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.log", "sub/c.txt", "sub/deep/d.txt"}, rel(t, root, list.Paths()))
}

func TestBackupListRemoveUnchanged(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a"), 5)
	b := writeFile(t, filepath.Join(root, "b"), 6)
	require.NoError(t, os.Symlink(a, filepath.Join(root, "l")))

	list := fsset.NewBackupList(nil)
	_, err := list.AddDirContents(root, fsset.DefaultWalk)
	require.NoError(t, err)

	prior, err := list.GenerateDigestMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, prior.Keys())

	writeFile(t, b, 7)
	removed, captured, err := list.RemoveUnchanged(context.Background(), prior, true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"b", "l"}, rel(t, root, list.Paths()))
	assert.Equal(t, []string{a, b}, captured.Keys())
	assert.Equal(t, prior[a], captured[a])
	assert.NotEqual(t, prior[b], captured[b])
	assert.False(t, list.Contains(a))
}

func spanFixture(t *testing.T) *fsset.BackupList {
	t.Helper()
	root := t.TempDir()
	for name, size := range map[string]int{"f100": 100, "f200": 200, "f300": 300, "f400": 400} {
		writeFile(t, filepath.Join(root, name), size)
	}
	list := fsset.NewBackupList(nil)
	_, err := list.AddDirContents(root, fsset.DefaultWalk)
	require.NoError(t, err)
	return list
}

func TestGenerateFittedLeavesListIntact(t *testing.T) {
	list := spanFixture(t)
	res, err := list.GenerateFitted(500, knapsack.Worst)
	require.NoError(t, err)
	assert.Len(t, res.Chosen, 2)
	assert.Equal(t, int64(300), res.Used)
	assert.Equal(t, 4, list.Len())
}

func TestGenerateSpan(t *testing.T) {
	list := spanFixture(t)

	spans, err := list.GenerateSpan(500, knapsack.Best)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, int64(500), spans[0].Size)
	assert.Equal(t, int64(500), spans[1].Size)
	assert.InDelta(t, 100.0, spans[0].Utilization, 0.001)

	spans, err = list.GenerateSpan(500, knapsack.Worst)
	require.NoError(t, err)
	require.Len(t, spans, 3)
	var total int64
	seen := map[string]bool{}
	for _, span := range spans {
		assert.LessOrEqual(t, span.Size, span.Capacity)
		total += span.Size
		for _, p := range span.Paths {
			assert.False(t, seen[p], "each entry lands on exactly one disc")
			seen[p] = true
		}
	}
	assert.Equal(t, int64(1000), total)
	assert.Len(t, seen, 4)

	_, err = list.GenerateSpan(350, knapsack.Worst)
	assert.ErrorIs(t, err, services.ErrInvalidArgument)
	_, err = list.GenerateSpan(0, knapsack.Worst)
	assert.ErrorIs(t, err, services.ErrInvalidArgument)
}

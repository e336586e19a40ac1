package digest_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discback/internal/digest"
	"discback/internal/services"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFingerprintIsStable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "a.txt"), "hello world")

	first, err := digest.Fingerprint(path)
	require.NoError(t, err)
	second, err := digest.Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	other := writeFile(t, filepath.Join(dir, "b.txt"), "hello world")
	same, err := digest.Fingerprint(other)
	require.NoError(t, err)
	assert.Equal(t, first, same)

	changed := writeFile(t, filepath.Join(dir, "c.txt"), "different content")
	diff, err := digest.Fingerprint(changed)
	require.NoError(t, err)
	assert.NotEqual(t, first, diff)
}

func TestFingerprintRejectsLinksAndDirectories(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, filepath.Join(dir, "target"), "x")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	_, err := digest.Fingerprint(link)
	assert.ErrorIs(t, err, services.ErrInvalidArgument)

	_, err = digest.Fingerprint(dir)
	assert.ErrorIs(t, err, services.ErrInvalidArgument)

	_, err = digest.Fingerprint(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBuildMapSkipsNonRegularAndMissing(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "a")
	b := writeFile(t, filepath.Join(dir, "sub", "b"), "b")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(a, link))

	paths := []string{a, b, link, filepath.Join(dir, "sub"), filepath.Join(dir, "gone")}
	m, err := digest.BuildMap(context.Background(), slices.Values(paths), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, m.Keys())
}

func TestRemoveUnchangedDropsOnlyUnchangedKnownFiles(t *testing.T) {
	dir := t.TempDir()
	same := writeFile(t, filepath.Join(dir, "same"), "constant")
	edited := writeFile(t, filepath.Join(dir, "edited"), "before")
	fresh := writeFile(t, filepath.Join(dir, "fresh"), "new")

	prior, err := digest.BuildMap(context.Background(), slices.Values([]string{same, edited}), nil)
	require.NoError(t, err)

	kept, removed, err := digest.RemoveUnchanged(context.Background(), []string{edited, fresh, same}, prior, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{edited, fresh}, kept)
	assert.Equal(t, 1, removed)

	require.NoError(t, os.WriteFile(edited, []byte("after"), 0o644))
	kept, removed, err = digest.RemoveUnchanged(context.Background(), []string{edited, fresh, same}, prior, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{edited, fresh}, kept)
	assert.Equal(t, 1, removed)
}

func TestRemoveUnchangedWithEverythingUnchanged(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a", "b", "c"} {
		paths = append(paths, writeFile(t, filepath.Join(dir, name), name))
	}
	prior, err := digest.BuildMap(context.Background(), slices.Values(paths), nil)
	require.NoError(t, err)

	kept, removed, err := digest.RemoveUnchanged(context.Background(), paths, prior, nil)
	require.NoError(t, err)
	assert.Empty(t, kept)
	assert.Equal(t, 3, removed)
}

func TestRemoveUnchangedKeepsLinksAndDropsVanished(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "a")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(a, link))
	gone := filepath.Join(dir, "gone")

	kept, removed, err := digest.RemoveUnchanged(context.Background(), []string{link, gone}, digest.Map{gone: "abc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{link}, kept)
	assert.Zero(t, removed)
}

func TestRemoveUnchangedCaptureCoversKeptAndRemoved(t *testing.T) {
	dir := t.TempDir()
	same := writeFile(t, filepath.Join(dir, "same"), "constant")
	fresh := writeFile(t, filepath.Join(dir, "fresh"), "new")
	prior, err := digest.BuildMap(context.Background(), slices.Values([]string{same}), nil)
	require.NoError(t, err)

	kept, removed, current, err := digest.RemoveUnchangedCapture(context.Background(), []string{same, fresh}, prior, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, kept)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{fresh, same}, current.Keys())
	assert.Equal(t, prior[same], current[same])
}

func TestRemoveUnchangedHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := digest.RemoveUnchanged(ctx, []string{a}, digest.Map{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

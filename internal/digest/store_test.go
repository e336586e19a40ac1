package digest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discback/internal/digest"
)

func TestStoreRoundTripOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "home.digest.json")
	store := digest.NewStore(path, nil)

	require.NoError(t, store.Save(digest.Map{"/a": "1", "/b": "2"}))
	assert.Equal(t, digest.Map{"/a": "1", "/b": "2"}, store.Load())

	require.NoError(t, store.Save(digest.Map{"/c": "3"}))
	assert.Equal(t, digest.Map{"/c": "3"}, store.Load())

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStoreMissingFileLoadsEmpty(t *testing.T) {
	store := digest.NewStore(filepath.Join(t.TempDir(), "absent.json"), nil)
	m := store.Load()
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestStoreCorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.Empty(t, digest.NewStore(path, nil).Load())
}

func TestStoreAlgorithmMismatchLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sha1.json")
	body := `{"algorithm":"sha1","entries":{"/a":"da39a3ee"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	assert.Empty(t, digest.NewStore(path, nil).Load())
}

func TestStoreReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home.json")
	store := digest.NewStore(path, nil)
	require.NoError(t, store.Reset())
	require.NoError(t, store.Save(digest.Map{"/a": "1"}))
	require.NoError(t, store.Reset())
	assert.Empty(t, store.Load())
}

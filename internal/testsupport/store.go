package testsupport

import (
	"context"
	"testing"

	"discback/internal/catalog"
	"discback/internal/config"
)

// MustOpenCatalog opens the run catalog configured in cfg and closes it when
// the test ends.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("open catalog %s: %v", cfg.Catalog.Path, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// BeginRun records a running backup with the given mode.
func BeginRun(t testing.TB, store *catalog.Store, mode string) *catalog.Run {
	t.Helper()

	run, err := store.BeginRun(context.Background(), catalog.KindBackup, mode)
	if err != nil {
		t.Fatalf("begin %s run: %v", mode, err)
	}
	return run
}

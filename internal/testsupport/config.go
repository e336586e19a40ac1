package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"discback/internal/config"
)

// ConfigOption adjusts the config returned by NewConfig.
type ConfigOption func(cfg *config.Config, baseDir string)

// NewConfig returns a default config whose paths all live under a fresh temp
// directory, so tests never touch the user's state.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkingDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DigestDir = filepath.Join(base, "digests")
	cfg.Paths.LockPath = filepath.Join(base, "discback.lock")
	cfg.Catalog.Path = filepath.Join(base, "catalog.db")
	cfg.Logging.Format = "json"

	for _, opt := range opts {
		opt(&cfg, base)
	}
	return &cfg
}

// WithCollectDir adds a collect directory. A relative path is resolved
// against the temp directory.
func WithCollectDir(path, graft string) ConfigOption {
	return func(cfg *config.Config, baseDir string) {
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		cfg.Collect.Dirs = append(cfg.Collect.Dirs, config.CollectDir{Path: path, Graft: graft})
	}
}

// WithMetricsTextfile exports metrics to metrics/discback.prom under the temp
// directory.
func WithMetricsTextfile() ConfigOption {
	return func(cfg *config.Config, baseDir string) {
		cfg.Metrics.TextfilePath = filepath.Join(baseDir, "metrics", "discback.prom")
	}
}

// BaseDir returns the temp directory backing a NewConfig config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkingDir)
}

// StubBinary writes script as an executable called name into a private bin
// directory and puts that directory first on PATH for the rest of the test.
func StubBinary(t *testing.T, name, script string) string {
	t.Helper()

	binDir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return target
}

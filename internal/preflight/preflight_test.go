package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"discback/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryReadable(t *testing.T) {
	result := CheckDirectoryReadable("collect", t.TempDir())
	if !result.Passed || !strings.Contains(result.Detail, "read ok") {
		t.Fatalf("expected readable temp dir, got %+v", result)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected one byte to fit, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, 1<<62); result.Passed {
		t.Fatal("expected failure for an impossible requirement")
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckSystemDepsCdrecordOptionality(t *testing.T) {
	cfg := config.Default()
	cfg.Image.MkisofsBinary = "clearly-not-present-mkisofs"
	cfg.Store.CdrecordBinary = "clearly-not-present-cdrecord"

	statuses := CheckSystemDeps(context.Background(), &cfg)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Optional || !statuses[1].Optional {
		t.Fatalf("unexpected optional flags: %#v", statuses)
	}

	cfg.Store.CheckBoundaries = true
	statuses = CheckSystemDeps(context.Background(), &cfg)
	if statuses[1].Optional {
		t.Fatal("cdrecord should be required when boundaries are checked")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	binDir := t.TempDir()
	mkisofs := filepath.Join(binDir, "mkisofs")
	if err := os.WriteFile(mkisofs, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Paths.WorkingDir = t.TempDir()
	cfg.Paths.DigestDir = t.TempDir()
	cfg.Collect.Dirs = []config.CollectDir{{Path: t.TempDir()}}
	cfg.Image.MkisofsBinary = mkisofs
	cfg.Store.CdrecordBinary = "clearly-not-present-cdrecord"
	cfg.Store.MediaType = "cdr-74"
	cfg.Store.CapacityPercent = 1

	results := RunAll(context.Background(), &cfg)
	// working dir + space + digest dir + one collect dir + two binaries
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_ReportsMissingCollectDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkingDir = t.TempDir()
	cfg.Paths.DigestDir = t.TempDir()
	cfg.Collect.Dirs = []config.CollectDir{{Path: filepath.Join(t.TempDir(), "gone")}}
	cfg.Image.MkisofsBinary = "clearly-not-present-mkisofs"

	failed := Failed(RunAll(context.Background(), &cfg))
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "Collect ") || !strings.Contains(joined, "Binary mkisofs") {
		t.Fatalf("expected collect and mkisofs failures, got %v", names)
	}
}

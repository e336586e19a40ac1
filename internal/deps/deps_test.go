package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present", "exit 0")

	results := CheckBinaries(context.Background(), []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail != `binary "clearly-not-present-binary" not found` {
		t.Fatalf("expected second requirement to be missing, got %#v", results[1])
	}
}

func TestCheckBinariesBlankCommand(t *testing.T) {
	results := CheckBinaries(context.Background(), []Requirement{{Name: "mkisofs", Command: "  "}})
	if results[0].Available || results[0].Detail != "command not configured" {
		t.Fatalf("unexpected status for blank command: %#v", results[0])
	}
}

func TestCheckBinariesFallsBackToAlternative(t *testing.T) {
	binDir := t.TempDir()
	writeStub(t, binDir, "genisoimage", "echo 'genisoimage 1.1.11 (Linux)'")
	t.Setenv("PATH", binDir)

	results := CheckBinaries(context.Background(), []Requirement{{
		Name:         "mkisofs",
		Command:      "mkisofs",
		Alternatives: []string{"genisoimage"},
		VersionArgs:  []string{"-version"},
	}})
	got := results[0]
	if !got.Available || got.Path != filepath.Join(binDir, "genisoimage") {
		t.Fatalf("expected genisoimage to stand in, got %#v", got)
	}
	if got.Detail != "using genisoimage in place of mkisofs" {
		t.Fatalf("unexpected detail %q", got.Detail)
	}
	if got.Version != "genisoimage 1.1.11 (Linux)" {
		t.Fatalf("unexpected version %q", got.Version)
	}
}

func TestProbeVersionIgnoresSilentFailures(t *testing.T) {
	broken := writeStub(t, t.TempDir(), "broken", "exit 3")
	if v := probeVersion(context.Background(), broken, []string{"-version"}); v != "" {
		t.Fatalf("expected empty version, got %q", v)
	}
}

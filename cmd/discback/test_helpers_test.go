package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"discback/internal/testsupport"
)

// fakeMkisofs reports ten sectors for -print-size and writes a small file
// for -o.
const fakeMkisofs = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -print-size) echo 10; exit 0 ;;
    -o) out="$2"; shift ;;
  esac
  shift
done
if [ -n "$out" ]; then printf ISO > "$out"; fi
exit 0
`

type cliTestEnv struct {
	baseDir    string
	configPath string
	dataDir    string
	workDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("DISCBACK_COLLECT_MODE", "")
	t.Setenv("DISCBACK_NTFY_TOPIC", "")

	testsupport.StubBinary(t, "mkisofs", fakeMkisofs)

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "discback.toml"),
		dataDir:    filepath.Join(base, "data"),
		workDir:    filepath.Join(base, "work"),
	}
	testsupport.WriteFile(t, filepath.Join(env.dataDir, "a.txt"), 100)
	testsupport.WriteFile(t, filepath.Join(env.dataDir, "sub", "b.txt"), 200)
	testsupport.WriteFile(t, filepath.Join(env.dataDir, "c.bin"), 300)
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
working_dir = %q
log_dir = %q
digest_dir = %q
lock_path = %q

[collect]
mode = "incremental"

[[collect.dirs]]
path = %q

[store]
media_type = "cdrw-74"
capacity_percent = 1

[logging]
format = "json"
level = "error"

[catalog]
path = %q
`,
		env.workDir,
		filepath.Join(env.baseDir, "logs"),
		filepath.Join(env.baseDir, "digests"),
		filepath.Join(env.baseDir, "discback.lock"),
		env.dataDir,
		filepath.Join(env.baseDir, "catalog.db"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

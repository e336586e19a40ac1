// Package deps locates the external programs discback shells out to.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 5 * time.Second

// Requirement defines an external binary discback relies on. Alternatives
// are tried in order when Command is not on PATH, for distributions that
// ship genisoimage or wodim under their own names.
type Requirement struct {
	Name         string
	Command      string
	Alternatives []string
	VersionArgs  []string
	Description  string
	Optional     bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Version     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries resolves each requirement and, when VersionArgs are set,
// records the first line the binary prints for them.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(ctx, req))
	}
	return results
}

func check(ctx context.Context, req Requirement) Status {
	cmd := strings.TrimSpace(req.Command)
	status := Status{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if cmd == "" {
		status.Detail = "command not configured"
		return status
	}

	for _, candidate := range append([]string{cmd}, req.Alternatives...) {
		path, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		status.Available = true
		status.Path = path
		if candidate != cmd {
			status.Detail = fmt.Sprintf("using %s in place of %s", candidate, cmd)
		}
		break
	}
	if !status.Available {
		status.Detail = fmt.Sprintf("binary %q not found", cmd)
		return status
	}
	if len(req.VersionArgs) > 0 {
		status.Version = probeVersion(ctx, status.Path, req.VersionArgs)
	}
	return status
}

// probeVersion returns the first non-blank output line, or "" when the
// binary fails or prints nothing.
func probeVersion(ctx context.Context, path string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil && len(out) == 0 {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}

package preflight

import (
	"context"
	"fmt"

	"discback/internal/config"
	"discback/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Working directory receives the image, so it needs room for a full disc.
	results = append(results, CheckDirectoryAccess("Working directory", cfg.Paths.WorkingDir))
	if budget, err := imageBudget(cfg); err != nil {
		results = append(results, Result{Name: "Working directory space", Detail: err.Error()})
	} else {
		results = append(results, CheckFreeSpace("Working directory space", cfg.Paths.WorkingDir, budget))
	}

	results = append(results, CheckDirectoryAccess("Digest directory", cfg.Paths.DigestDir))

	for _, dir := range cfg.Collect.Dirs {
		results = append(results, CheckDirectoryReadable("Collect "+dir.Path, dir.Path))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, depResult(status))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func depResult(status deps.Status) Result {
	name := "Binary " + status.Name
	switch {
	case status.Available:
		detail := status.Path
		if status.Version != "" {
			detail = fmt.Sprintf("%s (%s)", status.Path, status.Version)
		}
		if status.Detail != "" {
			detail += "; " + status.Detail
		}
		return Result{Name: name, Passed: true, Detail: detail}
	case status.Optional:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (optional)", status.Detail)}
	default:
		return Result{Name: name, Detail: status.Detail}
	}
}

// Package logging assembles structured slog loggers and formatting helpers used
// across discback.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so workflow code can tag log lines with run
// IDs, stages, and collect targets. Components accept a *slog.Logger at
// construction; NewNop provides the silent default used by tests.
package logging

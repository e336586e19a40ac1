// Package main hosts the discback CLI entrypoint and command graph.
//
// The Cobra command tree loads the TOML configuration once, builds the
// structured logger, and hands off to internal/workflow for image builds and
// purges. Planning helpers (fit, span plan) and inspection commands (digest,
// history, check) work directly against the internal packages.
//
// Keep this package thin: new behavior belongs in an internal package first
// and is surfaced here through a command or flag.
package main

// Package logs reads the discback log file for `discback logs`.
//
// Tail returns the last N lines or everything written after a byte offset,
// optionally waiting for new output. Follow builds on Tail to stream lines
// until the context ends.
package logs

// Package notifications pushes backup and purge outcomes to ntfy.
//
// Failures are always sent once a topic is configured; completed runs are
// only announced when notify.on_success is set. Without a topic the package
// hands out a no-op Service so workflow code never checks for nil.
package notifications

// Package workflow drives a complete backup or purge run.
//
// Builder.Run takes the run lock, checks preflight readiness, collects each
// configured directory into a backup list, drops files whose digest is
// unchanged, places the survivors in an image, and sizes it against the
// target media. An image that is too large is pruned when the store section
// allows it. After the image is written the digest maps are saved, the run
// is recorded in the catalog, metrics are exported and the image is
// optionally uploaded.
//
// Purger.Run applies the retention rules of the purge section.
//
// Both runners hold the same flock lock, so a purge never removes files from
// under a backup in progress.
package workflow

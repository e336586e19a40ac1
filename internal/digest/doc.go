// Package digest fingerprints file content and filters unchanged files out of
// incremental backups.
//
// Fingerprints are BLAKE3-256 hex digests. A Map of path to fingerprint is
// computed at the end of each successful run and persisted by Store, which
// overwrites rather than merges. On the next run RemoveUnchanged compares the
// live tree against that map and keeps only new or modified files. Files that
// vanish or cannot be read are dropped quietly since partial visibility into a
// large tree is expected.
package digest

// Package catalog records backup and purge runs in SQLite.
//
// Each run gets a UUID, a status derived from how it ended, and the counts
// and sizes that explain what went into the image. The files placed on a
// disc are stored per run so a later restore can find which disc holds a
// given path. Schema changes are added as numbered files under migrations/
// and applied in order on Open.
package catalog

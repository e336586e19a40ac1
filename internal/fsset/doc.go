// Package fsset builds ordered, duplicate-free lists of filesystem paths.
//
// A List is filled by walking directories with exclusions applied at every
// directory boundary. BackupList narrows entries to files and symlinks and
// adds size, digest, fitting, and spanning helpers. PurgeList collects the
// contents of directories to be cleaned out by age.
package fsset

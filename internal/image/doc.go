// Package image models the entry table of an ISO image and drives mkisofs to
// estimate its size or write it.
//
// Entries map source paths to graft points, the directory inside the image
// where the source lands. Directories can be expanded into their leaves so
// the prune package can drop individual files and then rebuild a valid
// entry set from whatever it keeps.
package image

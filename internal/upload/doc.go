// Package upload copies written images and their digest maps to
// S3-compatible object storage.
//
// The Uploader talks to an ObjectPutter so tests can replace the AWS client.
// NewClient builds the real client from the upload config section, using
// static credentials when both keys are set and the default AWS chain
// otherwise.
package upload

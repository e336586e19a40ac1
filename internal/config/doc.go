// Package config loads, normalizes, and validates discback configuration.
//
// Load reads a TOML file (by default ~/.config/discback/config.toml), layers
// it over Default, expands ~ in every path, and fills blanks from DISCBACK_*
// and AWS_* environment variables before Validate checks the result.
// Collect directories, image metadata, media settings, purge rules, upload
// and notification targets all live on the one Config value.
package config

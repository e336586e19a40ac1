package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working directories and the run lock.
type Paths struct {
	WorkingDir string `toml:"working_dir"`
	LogDir     string `toml:"log_dir"`
	DigestDir  string `toml:"digest_dir"`
	LockPath   string `toml:"lock_path"`
}

// CollectDir is one directory tree gathered into the backup image.
type CollectDir struct {
	Path            string   `toml:"path"`
	Graft           string   `toml:"graft"`
	Recursive       *bool    `toml:"recursive"`
	ExcludePaths    []string `toml:"exclude_paths"`
	ExcludePatterns []string `toml:"exclude_patterns"`
	ExcludeLinks    bool     `toml:"exclude_links"`
}

// IsRecursive reports whether the directory should be walked below its top level.
func (d CollectDir) IsRecursive() bool {
	return d.Recursive == nil || *d.Recursive
}

// Collect controls which files are candidates for an image.
type Collect struct {
	Mode            string       `toml:"mode"`
	IgnoreFile      string       `toml:"ignore_file"`
	ExcludePaths    []string     `toml:"exclude_paths"`
	ExcludePatterns []string     `toml:"exclude_patterns"`
	Dirs            []CollectDir `toml:"dirs"`
}

// Image carries mkisofs settings and volume metadata.
type Image struct {
	MkisofsBinary          string `toml:"mkisofs_binary"`
	RockRidge              bool   `toml:"rock_ridge"`
	ApplicationID          string `toml:"application_id"`
	BiblioFile             string `toml:"biblio_file"`
	PublisherID            string `toml:"publisher_id"`
	PreparerID             string `toml:"preparer_id"`
	VolumeID               string `toml:"volume_id"`
	GraftPoint             string `toml:"graft_point"`
	EstimateTimeoutSeconds int    `toml:"estimate_timeout_seconds"`
	WriteTimeoutSeconds    int    `toml:"write_timeout_seconds"`
}

// Store describes the target media and how to fit content onto it.
type Store struct {
	MediaType       string `toml:"media_type"`
	Device          string `toml:"device"`
	CdrecordBinary  string `toml:"cdrecord_binary"`
	CheckBoundaries bool   `toml:"check_boundaries"`
	CapacityPercent int    `toml:"capacity_percent"`
	Strategy        string `toml:"strategy"`
	Prune           bool   `toml:"prune"`
}

// Span controls splitting a large backup across several discs.
type Span struct {
	Strategy       string `toml:"strategy"`
	CushionPercent int    `toml:"cushion_percent"`
}

// PurgeDir is a directory whose old contents are removed.
type PurgeDir struct {
	Path       string `toml:"path"`
	RetainDays int    `toml:"retain_days"`
}

// Purge lists directories cleaned by the purge command.
type Purge struct {
	Dirs []PurgeDir `toml:"dirs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics controls the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Upload configures the optional offsite copy to S3-compatible storage.
type Upload struct {
	Enabled         bool   `toml:"enabled"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	PathStyle       bool   `toml:"path_style"`
	IncludeDigest   bool   `toml:"include_digest"`
}

// Notify configures ntfy push notifications for run outcomes.
type Notify struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	OnSuccess             bool   `toml:"on_success"`
}

// Catalog locates the run history database.
type Catalog struct {
	Path string `toml:"path"`
}

// Config encapsulates all configuration values for discback.
//
// Configuration sections by subsystem:
//   - Paths: working, log and digest directories plus the run lock
//   - Collect: directories to back up and exclusion rules
//   - Image: mkisofs binary and ISO volume metadata
//   - Store: media type, device and capacity handling
//   - Span: multi-disc splitting
//   - Purge: retention cleanup
//   - Logging, Metrics, Upload, Notify, Catalog: ambient services
type Config struct {
	Paths   Paths   `toml:"paths"`
	Collect Collect `toml:"collect"`
	Image   Image   `toml:"image"`
	Store   Store   `toml:"store"`
	Span    Span    `toml:"span"`
	Purge   Purge   `toml:"purge"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
	Upload  Upload  `toml:"upload"`
	Notify  Notify  `toml:"notify"`
	Catalog Catalog `toml:"catalog"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("discback.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a backup run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkingDir, c.Paths.LogDir, c.Paths.DigestDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DigestPath returns the persisted digest map location for a collect directory.
// The name is derived from the directory path so each tree keeps its own map.
func (c *Config) DigestPath(collectDir string) string {
	name := strings.Trim(filepath.ToSlash(filepath.Clean(collectDir)), "/")
	if name == "" {
		name = "root"
	}
	name = strings.ReplaceAll(name, "/", "-")
	return filepath.Join(c.Paths.DigestDir, name+".digest.json")
}

// ImagePath returns the ISO path written for a run started at the given time.
func (c *Config) ImagePath(now time.Time) string {
	return filepath.Join(c.Paths.WorkingDir, "discback-"+now.Format("20060102-150405")+".iso")
}

// EstimateTimeout returns the mkisofs -print-size deadline.
func (c *Config) EstimateTimeout() time.Duration {
	return time.Duration(c.Image.EstimateTimeoutSeconds) * time.Second
}

// WriteTimeout returns the mkisofs image write deadline.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Image.WriteTimeoutSeconds) * time.Second
}

// FullBackup reports whether the configured collect mode ignores prior digests.
func (c *Config) FullBackup() bool {
	return c.Collect.Mode == CollectModeFull
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

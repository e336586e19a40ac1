package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCollect(); err != nil {
		return err
	}
	c.normalizeImage()
	c.normalizeStore()
	if err := c.normalizePurge(); err != nil {
		return err
	}
	c.normalizeLogging()
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeUpload()
	c.normalizeNotify()
	return c.normalizeCatalog()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkingDir, err = expandPath(c.Paths.WorkingDir); err != nil {
		return fmt.Errorf("paths.working_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.DigestDir, err = expandPath(c.Paths.DigestDir); err != nil {
		return fmt.Errorf("paths.digest_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockPath) == "" {
		c.Paths.LockPath = defaultLockPath
	}
	if c.Paths.LockPath, err = expandPath(c.Paths.LockPath); err != nil {
		return fmt.Errorf("paths.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeCollect() error {
	c.Collect.Mode = strings.ToLower(strings.TrimSpace(c.Collect.Mode))
	if c.Collect.Mode == "" {
		c.Collect.Mode = CollectModeIncremental
	}
	if value, ok := os.LookupEnv("DISCBACK_COLLECT_MODE"); ok && strings.TrimSpace(value) != "" {
		c.Collect.Mode = strings.ToLower(strings.TrimSpace(value))
	}
	c.Collect.IgnoreFile = strings.TrimSpace(c.Collect.IgnoreFile)

	var err error
	if c.Collect.ExcludePaths, err = expandAll(c.Collect.ExcludePaths); err != nil {
		return fmt.Errorf("collect.exclude_paths: %w", err)
	}
	for i := range c.Collect.Dirs {
		dir := &c.Collect.Dirs[i]
		if dir.Path, err = expandPath(strings.TrimSpace(dir.Path)); err != nil {
			return fmt.Errorf("collect.dirs[%d].path: %w", i, err)
		}
		dir.Graft = strings.Trim(strings.TrimSpace(dir.Graft), "/")
		if dir.ExcludePaths, err = expandAll(dir.ExcludePaths); err != nil {
			return fmt.Errorf("collect.dirs[%d].exclude_paths: %w", i, err)
		}
	}
	return nil
}

func (c *Config) normalizeImage() {
	c.Image.MkisofsBinary = strings.TrimSpace(c.Image.MkisofsBinary)
	if c.Image.MkisofsBinary == "" {
		c.Image.MkisofsBinary = defaultMkisofsBinary
	}
	c.Image.GraftPoint = strings.Trim(strings.TrimSpace(c.Image.GraftPoint), "/")
	c.Image.VolumeID = strings.TrimSpace(c.Image.VolumeID)
	if c.Image.EstimateTimeoutSeconds <= 0 {
		c.Image.EstimateTimeoutSeconds = defaultEstimateTimeoutSeconds
	}
	if c.Image.WriteTimeoutSeconds <= 0 {
		c.Image.WriteTimeoutSeconds = defaultWriteTimeoutSeconds
	}
}

func (c *Config) normalizeStore() {
	c.Store.MediaType = strings.ToLower(strings.TrimSpace(c.Store.MediaType))
	if c.Store.MediaType == "" {
		c.Store.MediaType = defaultMediaType
	}
	c.Store.Device = strings.TrimSpace(c.Store.Device)
	c.Store.CdrecordBinary = strings.TrimSpace(c.Store.CdrecordBinary)
	if c.Store.CdrecordBinary == "" {
		c.Store.CdrecordBinary = defaultCdrecordBinary
	}
	if c.Store.CapacityPercent == 0 {
		c.Store.CapacityPercent = defaultCapacityPercent
	}
	c.Store.Strategy = strings.ToLower(strings.TrimSpace(c.Store.Strategy))
	if c.Store.Strategy == "" {
		c.Store.Strategy = defaultStoreStrategy
	}
	c.Span.Strategy = strings.ToLower(strings.TrimSpace(c.Span.Strategy))
	if c.Span.Strategy == "" {
		c.Span.Strategy = defaultSpanStrategy
	}
}

func (c *Config) normalizePurge() error {
	var err error
	for i := range c.Purge.Dirs {
		if c.Purge.Dirs[i].Path, err = expandPath(strings.TrimSpace(c.Purge.Dirs[i].Path)); err != nil {
			return fmt.Errorf("purge.dirs[%d].path: %w", i, err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() error {
	var err error
	if c.Metrics.TextfilePath, err = expandPath(strings.TrimSpace(c.Metrics.TextfilePath)); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeUpload() {
	c.Upload.Bucket = strings.TrimSpace(c.Upload.Bucket)
	c.Upload.Region = strings.TrimSpace(c.Upload.Region)
	if c.Upload.Region == "" {
		c.Upload.Region = defaultUploadRegion
	}
	c.Upload.Endpoint = strings.TrimSpace(c.Upload.Endpoint)
	c.Upload.Prefix = strings.Trim(strings.TrimSpace(c.Upload.Prefix), "/")
	c.Upload.AccessKeyID = strings.TrimSpace(c.Upload.AccessKeyID)
	if c.Upload.AccessKeyID == "" {
		if value, ok := os.LookupEnv("DISCBACK_S3_ACCESS_KEY_ID"); ok {
			c.Upload.AccessKeyID = strings.TrimSpace(value)
		}
	}
	c.Upload.SecretAccessKey = strings.TrimSpace(c.Upload.SecretAccessKey)
	if c.Upload.SecretAccessKey == "" {
		if value, ok := os.LookupEnv("DISCBACK_S3_SECRET_ACCESS_KEY"); ok {
			c.Upload.SecretAccessKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotify() {
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DISCBACK_NTFY_TOPIC"); ok {
			c.Notify.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notify.RequestTimeoutSeconds == 0 {
		c.Notify.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeCatalog() error {
	if strings.TrimSpace(c.Catalog.Path) == "" {
		c.Catalog.Path = defaultCatalogPath
	}
	var err error
	if c.Catalog.Path, err = expandPath(c.Catalog.Path); err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	return nil
}

func expandAll(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expanded, err := expandPath(p)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	knownStrategies = []string{"first", "best", "worst", "alternate"}
	knownMediaTypes = []string{"cdr-74", "cdrw-74", "cdr-80", "cdrw-80", "dvd+r", "dvd+rw"}
	knownLogLevels  = []string{"debug", "info", "warn", "warning", "error"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCollect(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validatePurge(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	return c.validateNotify()
}

func (c *Config) validateCollect() error {
	switch c.Collect.Mode {
	case CollectModeIncremental, CollectModeFull:
	default:
		return fmt.Errorf("collect.mode must be %q or %q", CollectModeIncremental, CollectModeFull)
	}
	if strings.ContainsRune(c.Collect.IgnoreFile, '/') {
		return errors.New("collect.ignore_file must be a bare file name")
	}
	if err := validatePatterns("collect.exclude_patterns", c.Collect.ExcludePatterns); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Collect.Dirs))
	for i, dir := range c.Collect.Dirs {
		if dir.Path == "" {
			return fmt.Errorf("collect.dirs[%d].path must be set", i)
		}
		if _, dup := seen[dir.Path]; dup {
			return fmt.Errorf("collect.dirs[%d].path %q is listed twice", i, dir.Path)
		}
		seen[dir.Path] = struct{}{}
		if err := validatePatterns(fmt.Sprintf("collect.dirs[%d].exclude_patterns", i), dir.ExcludePatterns); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateImage() error {
	if len(c.Image.VolumeID) > 32 {
		return errors.New("image.volume_id must be at most 32 characters")
	}
	return ensurePositiveMap(map[string]int{
		"image.estimate_timeout_seconds": c.Image.EstimateTimeoutSeconds,
		"image.write_timeout_seconds":    c.Image.WriteTimeoutSeconds,
	})
}

func (c *Config) validateStore() error {
	if !slices.Contains(knownMediaTypes, c.Store.MediaType) {
		return fmt.Errorf("store.media_type must be one of %s", strings.Join(knownMediaTypes, ", "))
	}
	if c.Store.CapacityPercent <= 0 || c.Store.CapacityPercent > 100 {
		return errors.New("store.capacity_percent must be between 1 and 100")
	}
	if !slices.Contains(knownStrategies, c.Store.Strategy) {
		return fmt.Errorf("store.strategy must be one of %s", strings.Join(knownStrategies, ", "))
	}
	if c.Store.CheckBoundaries && c.Store.Device == "" {
		return errors.New("store.device must be set when store.check_boundaries is true")
	}
	if !slices.Contains(knownStrategies, c.Span.Strategy) {
		return fmt.Errorf("span.strategy must be one of %s", strings.Join(knownStrategies, ", "))
	}
	if c.Span.CushionPercent < 0 || c.Span.CushionPercent >= 100 {
		return errors.New("span.cushion_percent must be between 0 and 99")
	}
	return nil
}

func (c *Config) validatePurge() error {
	for i, dir := range c.Purge.Dirs {
		if dir.Path == "" {
			return fmt.Errorf("purge.dirs[%d].path must be set", i)
		}
		if dir.RetainDays < 0 {
			return fmt.Errorf("purge.dirs[%d].retain_days must not be negative", i)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains(knownLogLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of %s", strings.Join(knownLogLevels, ", "))
	}
	return nil
}

func (c *Config) validateUpload() error {
	if !c.Upload.Enabled {
		return nil
	}
	if c.Upload.Bucket == "" {
		return errors.New("upload.bucket must be set when upload.enabled is true")
	}
	if (c.Upload.AccessKeyID == "") != (c.Upload.SecretAccessKey == "") {
		return errors.New("upload.access_key_id and upload.secret_access_key must be set together")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.NtfyTopic != "" && !strings.HasPrefix(c.Notify.NtfyTopic, "http://") && !strings.HasPrefix(c.Notify.NtfyTopic, "https://") {
		return errors.New("notify.ntfy_topic must be a full http(s) URL")
	}
	if c.Notify.RequestTimeoutSeconds < 0 {
		return errors.New("notify.request_timeout_seconds must not be negative")
	}
	return nil
}

func validatePatterns(field string, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%s: invalid pattern %q: %w", field, pattern, err)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

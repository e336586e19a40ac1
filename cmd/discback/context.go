package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"discback/internal/catalog"
	"discback/internal/config"
	"discback/internal/logging"
	"discback/internal/metrics"
	"discback/internal/notifications"
	"discback/internal/upload"
	"discback/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	catalog *catalog.Store
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// openCatalog opens the run history database once per invocation.
func (c *commandContext) openCatalog() (*catalog.Store, error) {
	if c.catalog != nil {
		return c.catalog, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c.catalog = store
	return store, nil
}

// runnerOptions wires the catalog, metrics, notifier and, when enabled, the
// uploader into a workflow runner.
func (c *commandContext) runnerOptions(ctx context.Context, withUpload bool) ([]workflow.Option, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.openCatalog()
	if err != nil {
		return nil, err
	}
	opts := []workflow.Option{
		workflow.WithCatalog(store),
		workflow.WithMetrics(metrics.New()),
		workflow.WithNotifier(notifications.NewService(cfg)),
	}
	if withUpload && cfg.Upload.Enabled {
		logger, err := c.ensureLogger()
		if err != nil {
			return nil, err
		}
		client, err := upload.NewClient(ctx, cfg.Upload)
		if err != nil {
			return nil, err
		}
		opts = append(opts, workflow.WithUploader(upload.New(client, cfg.Upload.Bucket, cfg.Upload.Prefix, logger)))
	}
	return opts, nil
}

func (c *commandContext) close() error {
	if c.catalog == nil {
		return nil
	}
	err := c.catalog.Close()
	c.catalog = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ContentFeed/internal/app"
	"ContentFeed/internal/config"
	"ContentFeed/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg := config.Load(path)
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withApp builds the application with the configured feeds seeded and
// closes it once fn returns. Logs go to stderr so command output stays
// parseable.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.Application) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	return runApp(cmd, cfg, fn)
}

func runApp(cmd *cobra.Command, cfg config.Config, fn func(*app.Application) error) error {
	logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			logger.Warn("close application", "error", cerr)
		}
	}()

	if err := application.SeedFeeds(cmd.Context()); err != nil {
		return err
	}
	return fn(application)
}

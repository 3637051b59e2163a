package main

import (
	"log/slog"
	"strings"
	"sync"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/records"
)

// commandContext lazily loads configuration and the record store so that
// commands which never touch them (config init, help) stay cheap.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	dbOnce sync.Once
	db     *records.DB
	dbErr  error
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
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureDB() (*records.DB, error) {
	c.dbOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.dbErr = err
			return
		}
		c.db, c.dbErr = records.Open(cfg)
	})
	return c.db, c.dbErr
}

func (c *commandContext) logger() *slog.Logger {
	return logging.NewNop()
}

func (c *commandContext) close() {
	if c.db != nil {
		c.db.Close()
	}
}

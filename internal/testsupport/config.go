package testsupport

import (
	"path/filepath"
	"testing"

	"murmur/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithRetryLimit overrides the job retry ceiling on the test config.
func WithRetryLimit(limit int) ConfigOption {
	return func(c *config.Config) {
		c.Jobs.RetryLimit = limit
	}
}

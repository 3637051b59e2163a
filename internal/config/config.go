package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir       string `toml:"data_dir" env:"MURMUR_DATA_DIR"`
	RecordingsDir string `toml:"recordings_dir" env:"MURMUR_RECORDINGS_DIR"`
	LogDir        string `toml:"log_dir" env:"MURMUR_LOG_DIR"`
}

// Transcription contains configuration for the speech-to-text backend.
type Transcription struct {
	BaseURL        string `toml:"base_url" env:"MURMUR_TRANSCRIPTION_BASE_URL"`
	APIKey         string `toml:"api_key" env:"MURMUR_TRANSCRIPTION_API_KEY"`
	Model          string `toml:"model" env:"MURMUR_TRANSCRIPTION_MODEL"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Enrichment contains shared model-API settings for title and distill generation.
type Enrichment struct {
	APIKey         string `toml:"api_key" env:"MURMUR_ENRICHMENT_API_KEY"`
	BaseURL        string `toml:"base_url" env:"MURMUR_ENRICHMENT_BASE_URL"`
	TitleModel     string `toml:"title_model"`
	DistillModel   string `toml:"distill_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Jobs contains retry and backoff configuration for background enrichment jobs.
type Jobs struct {
	RetryLimit         int `toml:"retry_limit"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffMaxSeconds  int `toml:"backoff_max_seconds"`
	PollInterval       int `toml:"poll_interval"`
}

// Ingest contains configuration for the recordings-directory watcher.
type Ingest struct {
	Enabled  bool `toml:"enabled"`
	Backfill bool `toml:"backfill"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"MURMUR_NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout"`
	Transcription  bool   `toml:"transcription"`
	Enrichment     bool   `toml:"enrichment"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"MURMUR_LOG_FORMAT"`
	Level  string `toml:"level" env:"MURMUR_LOG_LEVEL"`
}

// Config encapsulates all configuration values for murmur.
//
// Configuration sections by subsystem:
//   - Paths: data, recordings, and log directories
//   - Transcription: speech-to-text backend connection
//   - Enrichment: model API used for auto-title and auto-distill
//   - Jobs: retry ceiling, backoff curve, and runner polling
//   - Ingest: recordings-directory watcher behavior
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Enrichment    Enrichment    `toml:"enrichment"`
	Jobs          Jobs          `toml:"jobs"`
	Ingest        Ingest        `toml:"ingest"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/murmur/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// variables override file values. The returned config has all path fields
// expanded and normalized.
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

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, "", false, fmt.Errorf("apply environment overrides: %w", err)
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("murmur.toml")
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

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Jobs.RetryLimit < 0 {
		return fmt.Errorf("jobs.retry_limit must be non-negative, got %d", c.Jobs.RetryLimit)
	}
	if c.Jobs.BackoffBaseSeconds <= 0 {
		return fmt.Errorf("jobs.backoff_base_seconds must be positive, got %d", c.Jobs.BackoffBaseSeconds)
	}
	if c.Jobs.BackoffMaxSeconds < c.Jobs.BackoffBaseSeconds {
		return fmt.Errorf("jobs.backoff_max_seconds (%d) must not be below jobs.backoff_base_seconds (%d)",
			c.Jobs.BackoffMaxSeconds, c.Jobs.BackoffBaseSeconds)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
// RecordingsDir is created on a best-effort basis so the daemon can run when
// the capture device's storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.RecordingsDir) != "" {
		_ = os.MkdirAll(c.Paths.RecordingsDir, 0o755)
	}
	return nil
}

// DatabasePath returns the path of the SQLite database holding memo records.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "murmur.db")
}

// LockPath returns the path of the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "murmurd.lock")
}

// SampleConfig returns the embedded sample configuration file.
func SampleConfig() string {
	return sampleConfig
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

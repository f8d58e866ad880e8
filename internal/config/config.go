// Package config loads the command line tool's settings from
// ~/.picsart/config.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/me/creativeapis/pkg/picsart"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvAPIKey       = "PICSART_API_KEY"
	EnvImageBaseURL = "PICSART_IMAGE_BASE_URL"
	EnvGenAIBaseURL = "PICSART_GENAI_BASE_URL"
	EnvConfigPath   = "PICSART_CONFIG"
)

// CLIConfig holds configuration for the picsart command.
type CLIConfig struct {
	APIKey       string        `yaml:"api_key,omitempty"`
	ImageBaseURL string        `yaml:"image_base_url,omitempty"`
	GenAIBaseURL string        `yaml:"genai_base_url,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	LogLevel     string        `yaml:"log_level,omitempty"`  // debug, info, warn, error
	LogFormat    string        `yaml:"log_format,omitempty"` // text, json
	HistoryPath  string        `yaml:"history_path,omitempty"`
	RateLimit    float64       `yaml:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Retries      int           `yaml:"retries,omitempty"`    // extra attempts after server or transport failures
	Concurrency  int           `yaml:"concurrency,omitempty"`

	// PollInterval overrides the wait between status polls of async jobs.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// DefaultCLIConfig returns sensible defaults.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		ImageBaseURL: picsart.DefaultImageBaseURL,
		GenAIBaseURL: picsart.DefaultGenAIBaseURL,
		Timeout:      picsart.DefaultTimeout,
		LogLevel:     "info",
		LogFormat:    "text",
		Concurrency:  4,
	}
}

// Dir returns ~/.picsart.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".picsart"), nil
}

// DefaultPath returns the config file path, honouring PICSART_CONFIG.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (CLIConfig, error) {
	cfg := DefaultCLIConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *CLIConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvImageBaseURL); v != "" {
		c.ImageBaseURL = v
	}
	if v := os.Getenv(EnvGenAIBaseURL); v != "" {
		c.GenAIBaseURL = v
	}
}

// Save writes the config to path with owner-only permissions.
func Save(path string, cfg CLIConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// HistoryDBPath returns the history database path, defaulting to
// ~/.picsart/history.db.
func (c CLIConfig) HistoryDBPath() (string, error) {
	if c.HistoryPath != "" {
		return c.HistoryPath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// ClientConfig converts the settings into an SDK configuration.
func (c CLIConfig) ClientConfig() picsart.Config {
	cfg := picsart.DefaultConfig().
		WithAPIKey(c.APIKey).
		WithBaseURLs(c.ImageBaseURL, c.GenAIBaseURL).
		WithTimeout(c.Timeout)
	if c.RateLimit > 0 {
		cfg = cfg.WithRateLimit(c.RateLimit, 1)
	}
	if c.PollInterval > 0 {
		cfg.Text2ImagePolling.FirstDelay = c.PollInterval
		cfg.Text2ImagePolling.Interval = c.PollInterval
		cfg.UltraUpscalePolling.FirstDelay = c.PollInterval
		cfg.UltraUpscalePolling.Interval = c.PollInterval
	}
	if c.Retries > 0 {
		p := picsart.DefaultRetryPolicy()
		p.MaxAttempts = c.Retries + 1
		cfg = cfg.WithRetry(p)
	}
	return cfg
}

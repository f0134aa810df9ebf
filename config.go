package ferresdb

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 100 * time.Millisecond
)

// Config configures a Client. It is copied by NewClient and never mutated afterwards.
type Config struct {
	// BaseURL is the server address, e.g. "https://db.example.com". Required.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer credential on every request when non-empty,
	// and as the token query parameter of the streaming endpoint.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single HTTP attempt. Must be positive.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the first attempt. Must not be negative.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the backoff before the first retry; each further retry doubles it.
	// Must be positive.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Logging configures the logger built by NewClientFromConfig.
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating log file settings. An empty Path logs to stderr.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns a Config with default timeout and retry settings for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads configuration from a YAML file and applies environment variable overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values
//  3. Environment variables (FERRESDB_BASE_URL, FERRESDB_API_KEY, FERRESDB_TIMEOUT,
//     FERRESDB_MAX_RETRIES, FERRESDB_RETRY_DELAY, FERRESDB_LOG_LEVEL)
//
// The result is validated before it is returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig("")

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnvOverrides overrides config values from FERRESDB_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("FERRESDB_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FERRESDB_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("FERRESDB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: FERRESDB_TIMEOUT: %w", ErrInvalidConfig, err)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("FERRESDB_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: FERRESDB_MAX_RETRIES: %w", ErrInvalidConfig, err)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("FERRESDB_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: FERRESDB_RETRY_DELAY: %w", ErrInvalidConfig, err)
		}
		cfg.RetryDelay = d
	}
	if v := os.Getenv("FERRESDB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the invariants: a parseable http(s) base URL, a positive timeout,
// non-negative retries and a positive retry delay.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base URL: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base URL scheme must be http or https, got %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: base URL has no host", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("%w: retry delay must be positive", ErrInvalidConfig)
	}
	return nil
}

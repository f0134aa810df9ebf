package ferresdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://localhost:8080")
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryDelay)
	assert.Empty(t, cfg.APIKey)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty base url", func(c *Config) { c.BaseURL = "" }},
		{"unsupported scheme", func(c *Config) { c.BaseURL = "ftp://db.example.com" }},
		{"missing host", func(c *Config) { c.BaseURL = "http://" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero retry delay", func(c *Config) { c.RetryDelay = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("https://db.example.com")
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("zero retries allowed", func(t *testing.T) {
		cfg := DefaultConfig("https://db.example.com")
		cfg.MaxRetries = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ferresdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://db.example.com
api_key: from-file
timeout: 5s
max_retries: 1
logging:
  level: debug
  format: console
`), 0o600))

	t.Run("file values over defaults", func(t *testing.T) {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "https://db.example.com", cfg.BaseURL)
		assert.Equal(t, "from-file", cfg.APIKey)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
		assert.Equal(t, 1, cfg.MaxRetries)
		assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)
	})

	t.Run("environment over file", func(t *testing.T) {
		t.Setenv("FERRESDB_API_KEY", "from-env")
		t.Setenv("FERRESDB_MAX_RETRIES", "7")
		t.Setenv("FERRESDB_RETRY_DELAY", "250ms")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.APIKey)
		assert.Equal(t, 7, cfg.MaxRetries)
		assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	})

	t.Run("bad environment value", func(t *testing.T) {
		t.Setenv("FERRESDB_TIMEOUT", "soon")
		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := DefaultConfig("http://localhost:8080")
	cfg.Logging.File.Path = filepath.Join(t.TempDir(), "client.log")

	c, err := NewClientFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, c.Config())
	assert.NotNil(t, c.logger)
}

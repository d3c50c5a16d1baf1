package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirakosyanara/gropos-sub007/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.NotEmpty(t, cfg.API.BaseURL)
	assert.Positive(t, cfg.API.Timeout)
	assert.NotEmpty(t, cfg.Queue.Path)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, time.Second, cfg.Sync.BaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Sync.MaxDelay)
	assert.Equal(t, 5, cfg.Sync.MaxExponent)
	assert.Equal(t, 3, cfg.Token.RefreshAttempts)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr string
	}{
		{
			name: "valid config",
			modify: func(c *config.Config) {
				// No modifications
			},
			wantErr: "",
		},
		{
			name: "missing base URL",
			modify: func(c *config.Config) {
				c.API.BaseURL = ""
			},
			wantErr: "api.base_url is required",
		},
		{
			name: "negative timeout",
			modify: func(c *config.Config) {
				c.API.Timeout = -1
			},
			wantErr: "api.timeout must be positive",
		},
		{
			name: "missing queue path",
			modify: func(c *config.Config) {
				c.Queue.Path = ""
			},
			wantErr: "queue.path is required",
		},
		{
			name: "zero sync interval",
			modify: func(c *config.Config) {
				c.Sync.Interval = 0
			},
			wantErr: "sync.interval must be positive",
		},
		{
			name: "ceiling below base delay",
			modify: func(c *config.Config) {
				c.Sync.MaxDelay = 500 * time.Millisecond
			},
			wantErr: "sync.max_delay must be >= sync.base_delay",
		},
		{
			name: "jitter out of range",
			modify: func(c *config.Config) {
				c.Sync.Jitter = 1.5
			},
			wantErr: "sync.jitter must be in [0, 1]",
		},
		{
			name: "zero refresh attempts",
			modify: func(c *config.Config) {
				c.Token.RefreshAttempts = 0
			},
			wantErr: "token.refresh_attempts must be positive",
		},
		{
			name: "invalid log level",
			modify: func(c *config.Config) {
				c.Log.Level = "loud"
			},
			wantErr: "invalid log level",
		},
		{
			name: "invalid log format",
			modify: func(c *config.Config) {
				c.Log.Format = "xml"
			},
			wantErr: "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoaderEnv(t *testing.T) {
	os.Setenv("GROPOS_API_BASE_URL", "https://test.example.com")
	os.Setenv("GROPOS_API_TIMEOUT", "45s")
	os.Setenv("GROPOS_SYNC_INTERVAL", "10s")
	os.Setenv("GROPOS_LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("GROPOS_API_BASE_URL")
		os.Unsetenv("GROPOS_API_TIMEOUT")
		os.Unsetenv("GROPOS_SYNC_INTERVAL")
		os.Unsetenv("GROPOS_LOG_LEVEL")
	}()

	loader := config.NewLoader("")
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "https://test.example.com", cfg.API.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoaderFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.json")

	configJSON := `{
		"api": {
			"base_url": "https://file.example.com",
			"device_id": "reg-42"
		},
		"sync": {
			"max_exponent": 6,
			"jitter": 0.1
		},
		"log": {
			"level": "warn",
			"format": "json"
		}
	}`

	err := os.WriteFile(configPath, []byte(configJSON), 0644)
	require.NoError(t, err)

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.API.BaseURL)
	assert.Equal(t, "reg-42", cfg.API.DeviceID)
	assert.Equal(t, 6, cfg.Sync.MaxExponent)
	assert.Equal(t, 0.1, cfg.Sync.Jitter)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoaderMissingFile(t *testing.T) {
	loader := config.NewLoader(filepath.Join(t.TempDir(), "absent.json"))
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestLoaderInvalidConfigRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.json")

	err := os.WriteFile(configPath, []byte(`{"api": {"base_url": ""}}`), 0644)
	require.NoError(t, err)

	_, err = config.NewLoader(configPath).Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestConfigEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Queue.Path = filepath.Join(tmpDir, "data", "queue.db")
	cfg.Auth.TokenFile = filepath.Join(tmpDir, "data", "token.json")
	cfg.Log.File = filepath.Join(tmpDir, "logs", "gropos.log")

	err := cfg.EnsureDirectories()
	require.NoError(t, err)

	assert.DirExists(t, filepath.Dir(cfg.Queue.Path))
	assert.DirExists(t, filepath.Dir(cfg.Log.File))
}

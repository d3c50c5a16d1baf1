package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API configuration
	API APIConfig `json:"api" mapstructure:"api"`

	// Authentication configuration
	Auth AuthConfig `json:"auth" mapstructure:"auth"`

	// Outbound queue storage
	Queue QueueConfig `json:"queue" mapstructure:"queue"`

	// Sync worker behavior
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Token refresh behavior
	Token TokenConfig `json:"token" mapstructure:"token"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// APIConfig for backend communication.
type APIConfig struct {
	BaseURL   string        `json:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	UserAgent string        `json:"user_agent" mapstructure:"user_agent"`
	DeviceID  string        `json:"device_id" mapstructure:"device_id"`
}

// AuthConfig for register credentials and token persistence.
type AuthConfig struct {
	Email    string `json:"email,omitempty" mapstructure:"email"`
	Password string `json:"password,omitempty" mapstructure:"password"`
	StoreID  string `json:"store_id" mapstructure:"store_id"`

	// Token persistence
	TokenFile string `json:"token_file" mapstructure:"token_file"`
}

// QueueConfig for the durable outbound queue.
type QueueConfig struct {
	Path string `json:"path" mapstructure:"path"` // SQLite database path
}

// SyncConfig for the sync worker.
type SyncConfig struct {
	Interval    time.Duration `json:"interval" mapstructure:"interval"`         // Base scheduling interval
	BaseDelay   time.Duration `json:"base_delay" mapstructure:"base_delay"`     // Backoff base delay
	MaxDelay    time.Duration `json:"max_delay" mapstructure:"max_delay"`       // Backoff ceiling
	MaxExponent int           `json:"max_exponent" mapstructure:"max_exponent"` // Backoff exponent cap
	Jitter      float64       `json:"jitter" mapstructure:"jitter"`             // Proportional jitter, 0 disables
}

// TokenConfig for the token refresh manager.
type TokenConfig struct {
	CheckInterval   time.Duration `json:"check_interval" mapstructure:"check_interval"`     // Monitor tick
	ExpiryThreshold time.Duration `json:"expiry_threshold" mapstructure:"expiry_threshold"` // Proactive refresh window
	RefreshAttempts int           `json:"refresh_attempts" mapstructure:"refresh_attempts"` // Per-refresh attempt count
	RefreshDelay    time.Duration `json:"refresh_delay" mapstructure:"refresh_delay"`       // Delay between attempts
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stdout)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".gropos"

	return &Config{
		API: APIConfig{
			BaseURL:   "https://api.gropos.example.com",
			Timeout:   30 * time.Second,
			UserAgent: "gropos/1.0",
		},
		Auth: AuthConfig{
			TokenFile: filepath.Join(dataDir, "token.json"),
		},
		Queue: QueueConfig{
			Path: filepath.Join(dataDir, "queue.db"),
		},
		Sync: SyncConfig{
			Interval:    30 * time.Second,
			BaseDelay:   time.Second,
			MaxDelay:    5 * time.Minute,
			MaxExponent: 5,
			Jitter:      0.2,
		},
		Token: TokenConfig{
			CheckInterval:   30 * time.Second,
			ExpiryThreshold: 5 * time.Minute,
			RefreshAttempts: 3,
			RefreshDelay:    2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.Queue.Path == "" {
		return errors.New("queue.path is required")
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive")
	}

	if c.Sync.BaseDelay <= 0 {
		return errors.New("sync.base_delay must be positive")
	}

	if c.Sync.MaxDelay < c.Sync.BaseDelay {
		return errors.New("sync.max_delay must be >= sync.base_delay")
	}

	if c.Sync.MaxExponent < 0 {
		return errors.New("sync.max_exponent must not be negative")
	}

	if c.Sync.Jitter < 0 || c.Sync.Jitter > 1 {
		return errors.New("sync.jitter must be in [0, 1]")
	}

	if c.Token.RefreshAttempts <= 0 {
		return errors.New("token.refresh_attempts must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Queue.Path),
		filepath.Dir(c.Auth.TokenFile),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

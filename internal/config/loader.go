package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from file and environment.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "GROPOS",
	}
}

// Load reads configuration, layering environment over file over defaults.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("gropos")
		v.SetConfigType("json")
		for _, dir := range l.defaultDirs() {
			v.AddConfigPath(dir)
		}
		// Missing file is fine; defaults plus env still apply.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultDirs returns default config file locations.
func (l *Loader) defaultDirs() []string {
	dirs := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "gropos"),
			filepath.Join(homeDir, ".gropos"),
		)
	}

	return dirs
}

// setDefaults registers default values so env-only keys resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.device_id", cfg.API.DeviceID)
	v.SetDefault("auth.email", cfg.Auth.Email)
	v.SetDefault("auth.password", cfg.Auth.Password)
	v.SetDefault("auth.store_id", cfg.Auth.StoreID)
	v.SetDefault("auth.token_file", cfg.Auth.TokenFile)
	v.SetDefault("queue.path", cfg.Queue.Path)
	v.SetDefault("sync.interval", cfg.Sync.Interval)
	v.SetDefault("sync.base_delay", cfg.Sync.BaseDelay)
	v.SetDefault("sync.max_delay", cfg.Sync.MaxDelay)
	v.SetDefault("sync.max_exponent", cfg.Sync.MaxExponent)
	v.SetDefault("sync.jitter", cfg.Sync.Jitter)
	v.SetDefault("token.check_interval", cfg.Token.CheckInterval)
	v.SetDefault("token.expiry_threshold", cfg.Token.ExpiryThreshold)
	v.SetDefault("token.refresh_attempts", cfg.Token.RefreshAttempts)
	v.SetDefault("token.refresh_delay", cfg.Token.RefreshDelay)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
}

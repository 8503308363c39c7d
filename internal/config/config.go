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
	API APIConfig `json:"api"`

	// Storage paths and backends
	Storage StorageConfig `json:"storage"`

	// Cache TTL policy
	Cache CacheConfig `json:"cache"`

	// Device registration behavior
	Device DeviceConfig `json:"device"`

	// Logging
	Log LogConfig `json:"log"`
}

// APIConfig for backend communication.
type APIConfig struct {
	BaseURL    string        `json:"base_url"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	UserAgent  string        `json:"user_agent"`
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir      string `json:"data_dir"`      // Base directory for all data
	SessionDir   string `json:"session_dir"`   // Session-scoped cache records
	CacheBackend string `json:"cache_backend"` // json or sqlite
}

// CacheConfig controls how long secret material may be reused. TTLs are
// policy, not constants: a kiosk deployment may want minutes where a
// personal device wants hours.
type CacheConfig struct {
	PassphraseTTL time.Duration `json:"passphrase_ttl"`
	MasterKeyTTL  time.Duration `json:"master_key_ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// DeviceConfig for device-scoped key registration.
type DeviceConfig struct {
	AutoRegister bool   `json:"auto_register"`
	Name         string `json:"name"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	File   string `json:"file"`   // Log file path (empty = stdout)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".voddly"

	return &Config{
		API: APIConfig{
			BaseURL:    "https://api.voddly.app",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  "voddly-cli/1.0",
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			SessionDir:   filepath.Join(dataDir, "session"),
			CacheBackend: "json",
		},
		Cache: CacheConfig{
			PassphraseTTL: 5 * time.Minute,
			MasterKeyTTL:  5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Device: DeviceConfig{
			AutoRegister: true,
			Name:         defaultDeviceName(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultDeviceName() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "voddly-device"
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.Cache.PassphraseTTL <= 0 {
		return errors.New("cache.passphrase_ttl must be positive")
	}

	if c.Cache.MasterKeyTTL <= 0 {
		return errors.New("cache.master_key_ttl must be positive")
	}

	if c.Cache.SweepInterval <= 0 {
		return errors.New("cache.sweep_interval must be positive")
	}

	if c.Storage.CacheBackend != "json" && c.Storage.CacheBackend != "sqlite" {
		return fmt.Errorf("invalid cache backend: %s", c.Storage.CacheBackend)
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

// EnsureDirectories creates required directories. Session material lives
// under 0700 directories so cache records are never globally readable.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.SessionDir,
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

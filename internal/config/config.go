package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
)

// Config represents the entire application configuration
type Config struct {
	Pixiv    PixivConfig    `mapstructure:"pixiv"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PixivConfig contains Pixiv API configuration
type PixivConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	AccessToken string `mapstructure:"access_token"`
	UserID      string `mapstructure:"user_id"`
}

// CacheConfig contains image cache settings
type CacheConfig struct {
	RootDir        string `mapstructure:"root_dir"`
	MemoryLimitMB  int    `mapstructure:"memory_limit_mb"`
	PreloadWorkers int    `mapstructure:"preload_workers"`
}

// SyncConfig contains bookmark sync settings
type SyncConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	AutoPreload  bool   `mapstructure:"auto_preload"`
	Quality      int    `mapstructure:"quality"` // 0=medium, 1=large, 2=original
	AllPages     bool   `mapstructure:"all_pages"`
	Ugoira       bool   `mapstructure:"ugoira"`
	PageInterval string `mapstructure:"page_interval"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("pixiv.base_url", "https://app-api.pixiv.net")
	viper.SetDefault("cache.root_dir", "/var/lib/pixiv-bookmark-cache")
	viper.SetDefault("cache.memory_limit_mb", 50)
	viper.SetDefault("cache.preload_workers", 3)
	viper.SetDefault("sync.enabled", true)
	viper.SetDefault("sync.auto_preload", true)
	viper.SetDefault("sync.quality", 1)
	viper.SetDefault("sync.all_pages", false)
	viper.SetDefault("sync.ugoira", false)
	viper.SetDefault("sync.page_interval", "500ms")
	viper.SetDefault("database.path", "")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size_mb", 50)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age_days", 14)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Pixiv.BaseURL == "" {
		return fmt.Errorf("pixiv.base_url is required")
	}

	if c.Cache.RootDir == "" {
		return fmt.Errorf("cache.root_dir is required")
	}
	if c.Cache.PreloadWorkers < 1 || c.Cache.PreloadWorkers > 5 {
		return fmt.Errorf("cache.preload_workers must be between 1 and 5")
	}
	if c.Cache.MemoryLimitMB <= 0 {
		return fmt.Errorf("cache.memory_limit_mb must be positive")
	}

	if !domain.Quality(c.Sync.Quality).Valid() {
		return fmt.Errorf("sync.quality must be 0 (medium), 1 (large) or 2 (original)")
	}
	if _, err := time.ParseDuration(c.Sync.PageInterval); err != nil {
		return fmt.Errorf("invalid sync.page_interval: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// Settings returns the bookmark cache settings from the sync section
func (c *SyncConfig) Settings() domain.Settings {
	return domain.Settings{
		CacheEnabled: c.Enabled,
		AutoPreload:  c.AutoPreload,
		Quality:      domain.Quality(c.Quality),
		AllPages:     c.AllPages,
		UgoiraFrames: c.Ugoira,
	}
}

// GetPageInterval returns the listing page interval as time.Duration
func (c *SyncConfig) GetPageInterval() time.Duration {
	d, _ := time.ParseDuration(c.PageInterval)
	if d == 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetMemoryLimit returns the image cache memory limit in bytes
func (c *CacheConfig) GetMemoryLimit() int64 {
	if c.MemoryLimitMB <= 0 {
		return 50 * 1024 * 1024
	}
	return int64(c.MemoryLimitMB) * 1024 * 1024
}

package config

import (
	"time"

	"github.com/justin2061/drivefetch/internal/infra/drive"
	redisclient "github.com/justin2061/drivefetch/internal/infra/redis"
	"github.com/justin2061/drivefetch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Drive    drive.Config       `yaml:"drive"`
	Download DownloadConfig     `yaml:"download"`
	Retry    RetryConfig        `yaml:"retry"`
	Cache    CacheConfig        `yaml:"cache"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DownloadConfig holds download manager settings.
type DownloadConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	OutputRoot    string        `yaml:"output_root"`
	Retention     time.Duration `yaml:"retention"` // 0 = keep task history forever
}

// RetryConfig holds retry policy knobs for API calls.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Strategy   string        `yaml:"strategy"` // fixed, exponential, linear, random
	Jitter     *bool         `yaml:"jitter"`
}

// CacheConfig holds loader cache settings.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

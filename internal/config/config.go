package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Project stores
	ProjectsDir string `mapstructure:"projects-dir"`
	Project     string `mapstructure:"project"`
	FSMDBPath   string `mapstructure:"fsm-db-path"`

	// Pairing
	PoolSize    int `mapstructure:"pool-size"`
	MaxAttempts int `mapstructure:"max-attempts"`

	// Image loading and export limits
	MaxImageSize     int64         `mapstructure:"max-image-size"`
	MaxExportSize    int64         `mapstructure:"max-export-size"`
	MaxPixelRatio    float64       `mapstructure:"max-pixel-ratio"`
	PrefetchCacheTTL time.Duration `mapstructure:"prefetch-cache-ttl"`

	// S3 publishing (disabled when bucket is empty)
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`
	S3Prefix string `mapstructure:"s3-prefix"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	// Observability
	MetricsFile string `mapstructure:"metrics-file"`
	LogLevel    string `mapstructure:"log-level"`
}

// Load reads configuration from .env, environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("projects-dir", ".imgrank")
	viper.SetDefault("project", "")
	viper.SetDefault("fsm-db-path", ".imgrank/fsm")
	viper.SetDefault("pool-size", 500)
	viper.SetDefault("max-attempts", 20)
	viper.SetDefault("max-image-size", 200*1024*1024)
	viper.SetDefault("max-export-size", 0)
	viper.SetDefault("max-pixel-ratio", 0.0)
	viper.SetDefault("prefetch-cache-ttl", 5*time.Minute)
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-prefix", "imgrank")
	viper.SetDefault("fsm-max-retries", 3)
	viper.SetDefault("metrics-file", "")
	viper.SetDefault("log-level", "info")

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	// Environment variables (will be IMGRANK_POOL_SIZE, etc.)
	viper.SetEnvPrefix("IMGRANK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.imgrank")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.ProjectsDir == "" {
		return fmt.Errorf("projects-dir cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool-size must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max-attempts must be positive")
	}
	if c.MaxImageSize < 0 {
		return fmt.Errorf("max-image-size must be non-negative")
	}
	if c.MaxExportSize < 0 {
		return fmt.Errorf("max-export-size must be non-negative")
	}
	if c.MaxPixelRatio < 0 {
		return fmt.Errorf("max-pixel-ratio must be non-negative")
	}
	if c.PrefetchCacheTTL <= 0 {
		return fmt.Errorf("prefetch-cache-ttl must be positive")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return fmt.Errorf("s3-region cannot be empty when s3-bucket is set")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log-level %q", c.LogLevel)
	}
	return level, nil
}

// PublishEnabled reports whether an S3 bucket is configured.
func (c *Config) PublishEnabled() bool {
	return c.S3Bucket != ""
}

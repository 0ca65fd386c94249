package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Azure     AzureConfig     `mapstructure:"azure"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// ReferenceConfig locates the CPIC reference table. The table is loaded once
// at startup; a missing or malformed file is fatal.
type ReferenceConfig struct {
	Path            string `mapstructure:"path"`
	LookupCacheSize int    `mapstructure:"lookup_cache_size"`
}

// DatabaseConfig represents the optional run-archive database connection
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig represents the optional document-result cache
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// AzureConfig represents the Document Intelligence layout client
type AzureConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	APIVersion   string        `mapstructure:"api_version"`
	RateLimit    int           `mapstructure:"rate_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPolls     int           `mapstructure:"max_polls"`
}

// AnthropicConfig represents the LLM candidate extractor
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// FeedbackConfig selects and locates the reviewer feedback store
type FeedbackConfig struct {
	Backend    string `mapstructure:"backend"` // "sqlite", "postgres"
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

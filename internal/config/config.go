package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pgxbridge/internal/domain"
)

// Manager loads and validates application configuration using Viper
type Manager struct {
	config     *domain.Config
	configPath string
}

// NewManager creates a new configuration manager using the default search
// paths
func NewManager() (*Manager, error) {
	return NewManagerWithPath("")
}

// NewManagerWithPath creates a configuration manager reading the given config
// file. An empty path falls back to the default search paths.
func NewManagerWithPath(path string) (*Manager, error) {
	m := &Manager{configPath: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment, and defaults
func (m *Manager) loadConfig() error {
	if m.configPath != "" {
		viper.SetConfigFile(m.configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/pgxbridge/")
	}

	viper.SetEnvPrefix("PGXBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and environment variables suffice.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.max_body_bytes", 32<<20)

	// Reference table defaults
	viper.SetDefault("reference.path", "./data/cpic_reference.csv")
	viper.SetDefault("reference.lookup_cache_size", 1000)

	// Run archive defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "pgxbridge")
	viper.SetDefault("database.username", "pgxbridge")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "./migrations")

	// Result cache defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.default_ttl", "15m")

	// Document Intelligence defaults
	viper.SetDefault("azure.endpoint", "")
	viper.SetDefault("azure.api_key", "")
	viper.SetDefault("azure.model", "prebuilt-layout")
	viper.SetDefault("azure.api_version", "2024-02-29-preview")
	viper.SetDefault("azure.rate_limit", 5)
	viper.SetDefault("azure.timeout", "60s")
	viper.SetDefault("azure.poll_interval", "2s")
	viper.SetDefault("azure.max_polls", 30)

	// LLM extraction defaults
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-3-5-haiku-20241022")
	viper.SetDefault("anthropic.max_tokens", 2000)
	viper.SetDefault("anthropic.max_retries", 3)

	// Feedback store defaults
	viper.SetDefault("feedback.backend", "sqlite")
	viper.SetDefault("feedback.sqlite_path", "./data/feedback.db")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetReferenceConfig returns reference table configuration
func (m *Manager) GetReferenceConfig() *domain.ReferenceConfig {
	return &m.config.Reference
}

// GetDatabaseConfig returns run archive database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Reference.Path == "" {
		return fmt.Errorf("reference table path is required")
	}
	if config.Reference.LookupCacheSize <= 0 {
		return fmt.Errorf("invalid lookup cache size: %d", config.Reference.LookupCacheSize)
	}

	if config.Database.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	if config.Redis.Enabled && config.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	switch config.Feedback.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid feedback backend: %s", config.Feedback.Backend)
	}
	if config.Feedback.Backend == "postgres" && !config.Database.Enabled {
		return fmt.Errorf("feedback backend postgres requires the database to be enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Redis.URL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}

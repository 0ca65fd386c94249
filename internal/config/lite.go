// Package config provides configuration management for the pgxbridge services.
// This file contains the lightweight configuration for the stdio tool server.
package config

import (
	"os"
	"strconv"
)

// LiteConfig is a simplified configuration for standalone stdio operation.
// It requires no config file and no external services.
type LiteConfig struct {
	// Reference table
	ReferencePath   string // Path to the CPIC reference CSV
	LookupCacheSize int    // Maximum entries in the diplotype lookup cache

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	return &LiteConfig{
		ReferencePath:   "./data/cpic_reference.csv",
		LookupCacheSize: 1000,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PGXBRIDGE_REFERENCE_PATH"); v != "" {
		cfg.ReferencePath = v
	}
	if v := os.Getenv("PGXBRIDGE_LOOKUP_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LookupCacheSize = n
		}
	}

	if v := os.Getenv("PGXBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PGXBRIDGE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

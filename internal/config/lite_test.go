package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.Equal(t, "./data/cpic_reference.csv", cfg.ReferencePath)
	assert.Equal(t, 1000, cfg.LookupCacheSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, "./data/cpic_reference.csv", cfg.ReferencePath)
	assert.Equal(t, 1000, cfg.LookupCacheSize)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("PGXBRIDGE_REFERENCE_PATH", "/srv/pgx/cpic.csv")
	os.Setenv("PGXBRIDGE_LOOKUP_CACHE_SIZE", "500")
	os.Setenv("PGXBRIDGE_LOG_LEVEL", "debug")
	os.Setenv("PGXBRIDGE_LOG_FORMAT", "json")

	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, "/srv/pgx/cpic.csv", cfg.ReferencePath)
	assert.Equal(t, 500, cfg.LookupCacheSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_IgnoresInvalidCacheSize(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("PGXBRIDGE_LOOKUP_CACHE_SIZE", "not-a-number")
	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.LookupCacheSize)
}

func TestLoadLiteConfig_IgnoresNonPositiveCacheSize(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("PGXBRIDGE_LOOKUP_CACHE_SIZE", "0")
	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.LookupCacheSize)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"PGXBRIDGE_REFERENCE_PATH",
		"PGXBRIDGE_LOOKUP_CACHE_SIZE",
		"PGXBRIDGE_LOG_LEVEL",
		"PGXBRIDGE_LOG_FORMAT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

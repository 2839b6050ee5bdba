package strymconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("API_KEY", "secret")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadFromEnv_DefaultsPoolSizeAndAppName(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/strym")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("API_KEY", "secret")
	t.Setenv("DATABASE_POOL_SIZE", "")
	t.Setenv("APP_NAME", "")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.DatabasePoolSize)
	assert.Equal(t, "strym", cfg.AppName)
	assert.False(t, cfg.Debug)
}

func TestLoadFromEnv_ParsesDebugFlag(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/strym")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("API_KEY", "secret")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
}

func TestValidate_RejectsNonPositivePoolSize(t *testing.T) {
	cfg := Config{DatabaseURL: "x", RedisURL: "y", APIKey: "z", DatabasePoolSize: 0}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_POOL_SIZE")
}

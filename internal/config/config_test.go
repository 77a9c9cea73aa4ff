package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("ShutdownTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{ShutdownTimeoutSeconds: 10}
		assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	})
}

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/astro?sslmode=disable")
	t.Setenv("JWT_SECRET", "dev-only")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000,https://app.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.AutoMigrate)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "x")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:                   8000,
			Environment:            "development",
			DatabaseURL:            "postgres://localhost/astro",
			JWTSecret:              "short",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 10,
		}
	}

	t.Run("development accepts short secret", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("production requires strong secret", func(t *testing.T) {
		cfg := base()
		cfg.Environment = "production"
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

		cfg.JWTSecret = strings.Repeat("k", 40)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects unknown log level", func(t *testing.T) {
		cfg := base()
		cfg.LogLevel = "loud"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects bad port", func(t *testing.T) {
		cfg := base()
		cfg.Port = 0
		assert.Error(t, cfg.Validate())
	})
}

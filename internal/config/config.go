package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "secret", "your-secret-key", "jwt-secret", "password",
}

type Config struct {
	Port                   int      `env:"PORT" envDefault:"8000" validate:"min=1,max=65535"`
	Environment            string   `env:"APP_ENV" envDefault:"development" validate:"oneof=development production test"`
	DatabaseURL            string   `env:"DATABASE_URL,required,notEmpty" validate:"required"`
	RedisURL               string   `env:"REDIS_URL"`
	JWTSecret              string   `env:"JWT_SECRET,required,notEmpty" validate:"required"`
	LogLevel               string   `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`
	CORSOrigins            []string `env:"CORS_ORIGINS" envSeparator:","`
	AutoMigrate            bool     `env:"AUTO_MIGRATE" envDefault:"true"`
	ShutdownTimeoutSeconds int      `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"10" validate:"min=1"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks field constraints, and secret strength in production.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.IsProduction() {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: signaling relay runs single-instance")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

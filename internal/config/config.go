package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, loaded from the environment
// with optional .env overrides for local development.
type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"8080"`

	// Identity provider endpoint. When ProviderURL is empty the service
	// runs on the built-in in-memory provider (development and tests).
	ProviderURL string `env:"PROVIDER_URL"`
	ProviderKey string `env:"PROVIDER_KEY"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Session lifecycle tuning.
	ExpiryThreshold   time.Duration `env:"SESSION_EXPIRY_THRESHOLD" envDefault:"5m"`
	RefreshInterval   time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"1m"`
	ProfileFailClosed bool          `env:"PROFILE_FAIL_CLOSED" envDefault:"false"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	// Google OAuth app used by the integration services (calendar,
	// drive). Shared client, per-service scopes.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// UseLocalProvider reports whether the built-in provider should be used
// instead of a remote identity provider.
func (c Config) UseLocalProvider() bool {
	return c.ProviderURL == ""
}

// IntegrationsEnabled reports whether the Google OAuth app is
// configured.
func (c Config) IntegrationsEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

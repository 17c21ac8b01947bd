// Package config loads server configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server binary needs to start. Values come from
// the environment; defaults suit local development.
type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/apiserver.db"`

	// JWTSecret signs session cookies. Generate with: openssl rand -hex 32
	JWTSecret string `env:"JWT_SECRET"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `env:"GITHUB_CALLBACK_URL"`

	// SiteURL is the public frontend; OAuth callbacks redirect here and
	// verification emails link back into it.
	SiteURL string `env:"SITE_URL" envDefault:"http://localhost:3000"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	EmailFrom    string `env:"EMAIL_FROM" envDefault:"hello@botarena.dev"`
	EmailName    string `env:"EMAIL_FROM_NAME" envDefault:"Bot Arena"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: missing JWT_SECRET environment variable")
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/response/github", cfg.Port)
	}
	return cfg, nil
}

// SMTPConfigured reports whether outbound email can actually be delivered.
// When false the server falls back to a log-only notifier.
func (c Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

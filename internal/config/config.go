// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the configuration shared by the bot and web processes.
type Config struct {
	DiscordToken string
	DatabasePath string
	PollInterval time.Duration
	HTTPAddr     string

	// OAuth settings for the web dashboard. If ClientID or ClientSecret
	// is empty, login is reported as unavailable instead of failing
	// startup.
	ClientID     string
	ClientSecret string
	RedirectURL  string

	LogLevel string
	Debug    bool
}

// Load reads configuration from environment variables. Values required
// by only one of the two processes are validated by that process, not
// here.
func Load() (*Config, error) {
	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),
		DatabasePath: envOrDefault("DATABASE_PATH", "./data/rsscord.db"),
		HTTPAddr:     envOrDefault("HTTP_ADDR", ":3001"),
		ClientID:     os.Getenv("DISCORD_CLIENT_ID"),
		ClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("OAUTH_REDIRECT_URL"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		Debug:        os.Getenv("RSS_DEBUG") == "true",
	}

	interval := envOrDefault("POLL_INTERVAL", "5m")
	d, err := time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL %q: %w", interval, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %q", interval)
	}
	cfg.PollInterval = d

	return cfg, nil
}

// OAuthConfigured reports whether the dashboard can offer Discord login.
func (c *Config) OAuthConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

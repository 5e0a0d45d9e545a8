package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{"DISCORD_TOKEN": "tok"},
			want: &Config{
				DiscordToken: "tok",
				DatabasePath: "./data/rsscord.db",
				PollInterval: 5 * time.Minute,
				HTTPAddr:     ":3001",
				LogLevel:     "info",
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"DISCORD_TOKEN":         "tok",
				"DATABASE_PATH":         "/tmp/rsscord.db",
				"POLL_INTERVAL":         "90s",
				"HTTP_ADDR":             ":8080",
				"DISCORD_CLIENT_ID":     "cid",
				"DISCORD_CLIENT_SECRET": "secret",
				"OAUTH_REDIRECT_URL":    "https://example.com/auth/discord/callback",
				"LOG_LEVEL":             "debug",
				"RSS_DEBUG":             "true",
			},
			want: &Config{
				DiscordToken: "tok",
				DatabasePath: "/tmp/rsscord.db",
				PollInterval: 90 * time.Second,
				HTTPAddr:     ":8080",
				ClientID:     "cid",
				ClientSecret: "secret",
				RedirectURL:  "https://example.com/auth/discord/callback",
				LogLevel:     "debug",
				Debug:        true,
			},
		},
		{
			name:    "invalid interval",
			env:     map[string]string{"POLL_INTERVAL": "soon"},
			wantErr: true,
		},
		{
			name:    "negative interval",
			env:     map[string]string{"POLL_INTERVAL": "-5m"},
			wantErr: true,
		},
	}

	keys := []string{
		"DISCORD_TOKEN", "DATABASE_PATH", "POLL_INTERVAL", "HTTP_ADDR",
		"DISCORD_CLIENT_ID", "DISCORD_CLIENT_SECRET", "OAUTH_REDIRECT_URL",
		"LOG_LEVEL", "RSS_DEBUG",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range keys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOAuthConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{name: "both set", cfg: Config{ClientID: "a", ClientSecret: "b"}, want: true},
		{name: "missing secret", cfg: Config{ClientID: "a"}, want: false},
		{name: "missing both", cfg: Config{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.OAuthConfigured(); got != tt.want {
				t.Errorf("OAuthConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

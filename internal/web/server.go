// Package web is the dashboard process: Discord OAuth login plus a JSON
// API for managing feed subscriptions from a browser.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"rsscord/internal/config"
	"rsscord/internal/fetcher"
	"rsscord/internal/storage"
)

const discordAPIBase = "https://discord.com/api/v10"

// Server serves the feed dashboard.
type Server struct {
	cfg      *config.Config
	store    storage.Storage
	fetcher  *fetcher.Fetcher
	log      *slog.Logger
	oauth    *oauth2.Config
	sessions *sessionStore
	apiBase  string
	started  time.Time
}

// New creates a dashboard server. When the OAuth client pair is not
// configured the server still starts, but login reports unavailable.
func New(cfg *config.Config, store storage.Storage, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher.New(http.DefaultClient),
		log:      log,
		sessions: newSessionStore(),
		apiBase:  discordAPIBase,
		started:  time.Now(),
	}
	if cfg.OAuthConfigured() {
		s.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identify", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		}
	}
	return s
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /auth/discord", s.handleLogin)
	mux.HandleFunc("GET /auth/discord/callback", s.handleCallback)
	mux.HandleFunc("GET /auth/logout", s.handleLogout)

	mux.HandleFunc("GET /api/user", s.withSession(s.handleUser))
	mux.HandleFunc("GET /api/guilds/{guildID}/feeds", s.withSession(s.handleGuildFeeds))
	mux.HandleFunc("POST /api/feeds", s.withSession(s.handleCreateFeed))
	mux.HandleFunc("PUT /api/feeds/{id}", s.withSession(s.handleUpdateFeed))
	mux.HandleFunc("DELETE /api/feeds/{id}", s.withSession(s.handleDeleteFeed))
	mux.HandleFunc("POST /api/feeds/test", s.withSession(s.handleTestFeed))
	mux.HandleFunc("GET /api/status", s.withSession(s.handleStatus))
	mux.HandleFunc("GET /api/debug/feeds", s.withSession(s.handleDebugFeeds))

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", "addr", s.cfg.HTTPAddr, "oauth", s.cfg.OAuthConfigured())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

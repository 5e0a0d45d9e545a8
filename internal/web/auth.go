package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

const (
	sessionCookie = "rsscord_session"
	stateCookie   = "rsscord_oauth_state"
)

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type discordGuild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Permissions int64  `json:"permissions,string"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "login unavailable: OAuth is not configured")
		return
	}

	state := randomToken()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "login unavailable: OAuth is not configured")
		return
	}

	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || state.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "OAuth state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	token, err := s.oauth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.log.Error("oauth exchange", "error", err)
		writeError(w, http.StatusBadGateway, "could not complete Discord login")
		return
	}

	client := s.oauth.Client(r.Context(), token)

	var user discordUser
	if err := getJSON(client, s.apiBase+"/users/@me", &user); err != nil {
		s.log.Error("fetch identity", "error", err)
		writeError(w, http.StatusBadGateway, "could not load Discord identity")
		return
	}

	var guilds []discordGuild
	if err := getJSON(client, s.apiBase+"/users/@me/guilds", &guilds); err != nil {
		s.log.Error("fetch guilds", "error", err)
		writeError(w, http.StatusBadGateway, "could not load Discord guilds")
		return
	}

	sess := &session{
		UserID:   user.ID,
		Username: user.Username,
		Avatar:   user.Avatar,
		Guilds:   manageableGuilds(guilds),
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.sessions.Put(sess),
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.log.Info("user logged in", "user_id", user.ID, "guilds", len(sess.Guilds))
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

// withSession wraps an API handler with cookie-based authentication.
func (s *Server) withSession(h func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		sess := s.sessions.Get(c.Value)
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}
		h(w, r, sess)
	}
}

// manageableGuilds keeps the guilds where the user can manage feeds,
// mirroring the permission gate on the slash commands.
func manageableGuilds(guilds []discordGuild) []guildRef {
	var out []guildRef
	for _, g := range guilds {
		if g.Permissions&(discordgo.PermissionManageMessages|discordgo.PermissionAdministrator) == 0 {
			continue
		}
		out = append(out, guildRef{ID: g.ID, Name: g.Name, Icon: g.Icon})
	}
	return out
}

func getJSON(client *http.Client, url string, dst any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

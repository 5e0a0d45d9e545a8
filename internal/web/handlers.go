package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rsscord/internal/model"
	"rsscord/internal/storage"
)

const indexPage = `<!doctype html>
<html>
<head><title>rsscord</title></head>
<body>
<h1>rsscord</h1>
<p>RSS feeds for your Discord server.</p>
%s
</body>
</html>`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	link := `<p><a href="/auth/discord">Log in with Discord</a></p>`
	if s.oauth == nil {
		link = `<p>Login is unavailable: OAuth is not configured.</p>`
	} else if c, err := r.Cookie(sessionCookie); err == nil {
		if sess := s.sessions.Get(c.Value); sess != nil {
			link = fmt.Sprintf(`<p>Logged in as %s. <a href="/auth/logout">Log out</a></p>`, sess.Username)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexPage, link)
}

func (s *Server) handleUser(w http.ResponseWriter, _ *http.Request, sess *session) {
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGuildFeeds(w http.ResponseWriter, r *http.Request, sess *session) {
	guildID := r.PathValue("guildID")
	if !sess.canManage(guildID) {
		writeError(w, http.StatusForbidden, "no access to this guild")
		return
	}

	subs, err := s.store.ListSubscriptions(r.Context(), guildID)
	if err != nil {
		s.log.Error("list subscriptions", "guild_id", guildID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load feeds")
		return
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

type createFeedRequest struct {
	URL       string `json:"url"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	RolePing  string `json:"role_ping"`
}

func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request, sess *session) {
	var req createFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !strings.HasPrefix(req.URL, "http") {
		writeError(w, http.StatusBadRequest, "url must be an http(s) URL")
		return
	}
	if req.GuildID == "" || req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "guild_id and channel_id are required")
		return
	}
	if !sess.canManage(req.GuildID) {
		writeError(w, http.StatusForbidden, "no access to this guild")
		return
	}

	if _, err := s.fetcher.Fetch(r.Context(), req.URL); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("could not fetch feed: %v", err))
		return
	}

	sub := &model.Subscription{
		URL:       req.URL,
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		RolePing:  req.RolePing,
	}
	if err := s.store.CreateSubscription(r.Context(), sub); err != nil {
		if errors.Is(err, storage.ErrDuplicateSubscription) {
			writeError(w, http.StatusConflict, "feed already subscribed in that channel")
			return
		}
		s.log.Error("create subscription", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "could not save the subscription")
		return
	}

	s.log.Info("feed added", "subscription_id", sub.ID, "url", sub.URL, "user_id", sess.UserID)
	writeJSON(w, http.StatusCreated, sub)
}

type updateFeedRequest struct {
	Active   *bool   `json:"active"`
	RolePing *string `json:"role_ping"`
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request, sess *session) {
	sub, ok := s.ownedSubscription(w, r, sess)
	if !ok {
		return
	}

	var req updateFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.store.UpdateSubscription(r.Context(), sub.ID, model.SubscriptionPatch{
		Active:   req.Active,
		RolePing: req.RolePing,
	})
	if err != nil {
		s.log.Error("update subscription", "subscription_id", sub.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not update the subscription")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request, sess *session) {
	sub, ok := s.ownedSubscription(w, r, sess)
	if !ok {
		return
	}

	if err := s.store.DeleteSubscription(r.Context(), sub.ID); err != nil {
		s.log.Error("delete subscription", "subscription_id", sub.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not remove the subscription")
		return
	}
	s.log.Info("feed removed", "subscription_id", sub.ID, "user_id", sess.UserID)
	w.WriteHeader(http.StatusNoContent)
}

type testFeedRequest struct {
	URL string `json:"url"`
}

type testFeedResponse struct {
	Title      string `json:"title"`
	ItemCount  int    `json:"item_count"`
	NewestItem string `json:"newest_item,omitempty"`
}

func (s *Server) handleTestFeed(w http.ResponseWriter, r *http.Request, _ *session) {
	var req testFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !strings.HasPrefix(req.URL, "http") {
		writeError(w, http.StatusBadRequest, "url must be an http(s) URL")
		return
	}

	snap, err := s.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("feed test failed: %v", err))
		return
	}

	resp := testFeedResponse{Title: snap.Title, ItemCount: len(snap.Items)}
	if len(snap.Items) > 0 {
		resp.NewestItem = snap.Items[0].Title
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Total         int    `json:"total"`
	Active        int    `json:"active"`
	WithRole      int    `json:"with_role"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Uptime        string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ *session) {
	counts, err := s.store.CountSubscriptions(r.Context())
	if err != nil {
		s.log.Error("count subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load status")
		return
	}

	uptime := time.Since(s.started).Truncate(time.Second)
	writeJSON(w, http.StatusOK, statusResponse{
		Total:         counts.Total,
		Active:        counts.Active,
		WithRole:      counts.WithRole,
		UptimeSeconds: int64(uptime.Seconds()),
		Uptime:        uptime.String(),
	})
}

type debugFeed struct {
	Subscription model.Subscription `json:"subscription"`
	Marker       string             `json:"marker,omitempty"`
}

func (s *Server) handleDebugFeeds(w http.ResponseWriter, r *http.Request, _ *session) {
	if !s.cfg.Debug {
		http.NotFound(w, r)
		return
	}

	subs, err := s.store.ListSubscriptions(r.Context(), "")
	if err != nil {
		s.log.Error("list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load feeds")
		return
	}

	out := make([]debugFeed, 0, len(subs))
	for _, sub := range subs {
		marker, err := s.store.GetMarker(r.Context(), sub.ID)
		if err != nil {
			s.log.Error("get marker", "subscription_id", sub.ID, "error", err)
		}
		out = append(out, debugFeed{Subscription: sub, Marker: marker})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// ownedSubscription resolves the {id} path value and checks the session
// can manage the owning guild. On failure it writes the error response.
func (s *Server) ownedSubscription(w http.ResponseWriter, r *http.Request, sess *session) (*model.Subscription, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feed id")
		return nil, false
	}

	sub, err := s.store.GetSubscription(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "feed not found")
			return nil, false
		}
		s.log.Error("get subscription", "subscription_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load the subscription")
		return nil, false
	}
	if !sess.canManage(sub.GuildID) {
		writeError(w, http.StatusForbidden, "no access to this guild")
		return nil, false
	}
	return sub, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are out already, nothing useful to do.
		_ = err
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

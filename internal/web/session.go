package web

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const sessionTTL = 24 * time.Hour

// guildRef is a guild the logged-in user can manage feeds in.
type guildRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type session struct {
	UserID   string     `json:"user_id"`
	Username string     `json:"username"`
	Avatar   string     `json:"avatar,omitempty"`
	Guilds   []guildRef `json:"guilds"`

	expires time.Time
}

func (s *session) canManage(guildID string) bool {
	for _, g := range s.Guilds {
		if g.ID == guildID {
			return true
		}
	}
	return false
}

// sessionStore keeps sessions in memory, keyed by an opaque token.
// Sessions do not survive a restart; users just log in again.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (st *sessionStore) Put(s *session) string {
	token := randomToken()
	s.expires = time.Now().Add(sessionTTL)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[token] = s
	return token
}

func (st *sessionStore) Get(token string) *session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[token]
	if !ok {
		return nil
	}
	if time.Now().After(s.expires) {
		delete(st.sessions, token)
		return nil
	}
	return s
}

func (st *sessionStore) Delete(token string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, token)
}

func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

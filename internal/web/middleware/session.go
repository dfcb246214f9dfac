package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "photo_variants_session"
	sessionDuration   = 24 * time.Hour
)

// Session binds a browser or API client to a user. A user runs at most one
// job per session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager handles session creation and validation
type SessionManager struct {
	secret   []byte
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionManager creates a new session manager. An empty secret is
// replaced by a random one, which invalidates cookies on restart.
func NewSessionManager(secret string) *SessionManager {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &SessionManager{
		secret:   key,
		sessions: make(map[string]*Session),
	}
}

// CreateSession creates a new session for a user
func (sm *SessionManager) CreateSession(userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:        base64.RawURLEncoding.EncodeToString(idBytes),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionDuration),
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	return session, nil
}

// GetSession retrieves a live session by ID
func (sm *SessionManager) GetSession(sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !ok {
		return nil
	}

	if time.Now().After(session.ExpiresAt) {
		sm.DeleteSession(sessionID)
		return nil
	}
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
}

// SetSessionCookie sets the signed session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + sm.signData(session.ID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// GetSessionFromRequest extracts the session from the cookie or a bearer
// token
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sessionID, signature, ok := strings.Cut(cookie.Value, "."); ok && sm.verifySignature(sessionID, signature) {
			if session := sm.GetSession(sessionID); session != nil {
				return session
			}
		}
	}

	if sessionID, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return sm.GetSession(sessionID)
	}
	return nil
}

func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (sm *SessionManager) verifySignature(data, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(sm.signData(data)))
}

// SessionData is the public view of a session
type SessionData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ExpiresAt string `json:"expires_at"`
}

// MarshalJSON implements json.Marshaler
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(SessionData{
		SessionID: s.ID,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	})
}

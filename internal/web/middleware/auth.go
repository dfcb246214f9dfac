package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const sessionContextKey contextKey = "session"

// UserIDHeader lets API clients name the user a new session belongs to.
const UserIDHeader = "X-User-ID"

// WithSession attaches the caller's session to the request context, starting
// a new one when the request carries none.
func WithSession(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			if session == nil {
				userID := r.Header.Get(UserIDHeader)
				if userID == "" {
					userID = uuid.NewString()
				}
				var err error
				session, err = sm.CreateSession(userID)
				if err != nil {
					http.Error(w, `{"error": "failed to create session"}`, http.StatusInternalServerError)
					return
				}
				sm.SetSessionCookie(w, session)
			}

			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), session)))
		})
	}
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *Session {
	session, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// SetSessionInContext adds a session to the context.
func SetSessionInContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

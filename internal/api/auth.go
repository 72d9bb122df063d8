package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/kalambet/formcat/internal/session"
)

const (
	sessionCookie = "formcat_session"
	sessionHeader = "X-Session-ID"
)

type sessionKey struct{}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// WithSession resolves the caller's session from the X-Session-ID header or
// the session cookie, creating a new one when neither names a live session.
// The session ID is echoed in the response header.
func WithSession(m *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(sessionHeader)
			if id == "" {
				if c, err := r.Cookie(sessionCookie); err == nil {
					id = c.Value
				}
			}

			var sess *session.Session
			if id != "" {
				sess, _ = m.Get(id)
			}
			if sess == nil {
				var err error
				if sess, err = m.Create(); err != nil {
					writeError(w, err)
					return
				}
				setSessionID(w, sess.ID())
			} else {
				w.Header().Set(sessionHeader, sess.ID())
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
		})
	}
}

// setSessionID issues id as both the session cookie and response header,
// replacing any cookie set earlier in the same response.
func setSessionID(w http.ResponseWriter, id string) {
	w.Header().Del("Set-Cookie")
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(sessionHeader, id)
}

// RequirePrivileged rejects callers whose session has not logged in.
func RequirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := sessionFrom(r.Context()); s == nil || !s.Privileged() {
			httpError(w, http.StatusForbidden, "permission_error", "admin login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secretMatches compares in constant time. An empty secret never matches.
func secretMatches(given, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
}

package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionConfig configures the SessionID middleware.
type SessionConfig struct {
	// CookieName defaults to "kart_session".
	CookieName string
	// Header is checked before the cookie. Defaults to "X-Session-ID".
	Header string
	// MaxAge of the issued cookie. Defaults to 30 days.
	MaxAge time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

func (c *SessionConfig) setDefaults() {
	if c.CookieName == "" {
		c.CookieName = "kart_session"
	}
	if c.Header == "" {
		c.Header = "X-Session-ID"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * 24 * time.Hour
	}
}

type sessionIDKey struct{}

// SessionIDFromContext returns the session id stored by SessionID, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// WithSessionID returns a copy of ctx carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionID resolves the browsing-session id of a request from the header or
// the cookie. Missing or malformed ids are replaced with a new UUID. The id is
// echoed in the response header and cookie.
func SessionID(cfg SessionConfig) Middleware {
	cfg.setDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(cfg.Header)
			if id == "" {
				if c, err := r.Cookie(cfg.CookieName); err == nil {
					id = c.Value
				}
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}

			w.Header().Set(cfg.Header, id)
			http.SetCookie(w, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(cfg.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
		})
	}
}

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultSessionCookie names the cookie carrying anonymous cart session identifiers.
const DefaultSessionCookie = "cart_session"

const defaultSessionTTL = 30 * 24 * time.Hour

const sessionContextKey contextKey = "github.com/feiraviva/api/internal/platform/auth/session"

// WithSession stores the anonymous session identifier within the context.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionContextKey, sessionID)
}

// SessionFromContext retrieves the anonymous session identifier previously stored in context.
func SessionFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionContextKey).(string)
	if !ok || sessionID == "" {
		return "", false
	}
	return sessionID, true
}

// SessionManager issues and recognises anonymous session cookies so guests can
// keep a cart without signing in. Authenticated requests bypass the cookie.
type SessionManager struct {
	cookieName string
	ttl        time.Duration
	secure     bool
	idGen      func() string
}

// SessionOption customises SessionManager behaviour.
type SessionOption func(*SessionManager)

// WithSessionCookieName overrides the cookie name.
func WithSessionCookieName(name string) SessionOption {
	return func(m *SessionManager) {
		name = strings.TrimSpace(name)
		if name != "" {
			m.cookieName = name
		}
	}
}

// WithSessionTTL overrides the cookie lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSecureCookies marks issued cookies as Secure.
func WithSecureCookies(secure bool) SessionOption {
	return func(m *SessionManager) {
		m.secure = secure
	}
}

// WithSessionIDGenerator overrides identifier generation, primarily for tests.
func WithSessionIDGenerator(gen func() string) SessionOption {
	return func(m *SessionManager) {
		if gen != nil {
			m.idGen = gen
		}
	}
}

// NewSessionManager constructs a SessionManager with sane defaults.
func NewSessionManager(opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		cookieName: DefaultSessionCookie,
		ttl:        defaultSessionTTL,
		idGen:      func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// EnsureSession attaches a session identifier to every request that carries no
// authenticated identity. A missing or malformed cookie is replaced with a
// freshly minted one.
func (m *SessionManager) EnsureSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := m.sessionFromCookie(r)
			if sessionID == "" {
				sessionID = m.idGen()
				http.SetCookie(w, &http.Cookie{
					Name:     m.cookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(m.ttl / time.Second),
					HttpOnly: true,
					Secure:   m.secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithSession(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *SessionManager) sessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	value := strings.TrimSpace(cookie.Value)
	if _, err := ulid.ParseStrict(value); err != nil {
		return ""
	}
	return value
}

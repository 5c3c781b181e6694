package middleware

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const userContextKey contextKey = "user"

// SessionTTL is how long a login stays valid.
const SessionTTL = 24 * time.Hour

// sessionKeyPrefix namespaces sessions in the shared key-value store.
const sessionKeyPrefix = "session:"

// Session represents an authenticated user.
type Session struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionBackend is the key-value storage sessions live in. The Redis and SQLite
// kv stores both satisfy it, so sessions survive restarts and are shared by every
// process pointed at the same store.
type SessionBackend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// SessionStore issues and resolves session tokens.
// Only a SHA-256 digest of each token is used as the storage key.
type SessionStore struct {
	backend SessionBackend
	now     func() time.Time
}

// NewSessionStore creates a SessionStore over backend.
// PRE: backend is non-nil
func NewSessionStore(backend SessionBackend) *SessionStore {
	return &SessionStore{backend: backend, now: time.Now}
}

// Create stores a new session and returns its token.
// PRE: userID and email are non-empty
// POST: The session expires after SessionTTL
func (ss *SessionStore) Create(ctx context.Context, userID, email, name string) (string, error) {
	token := generateToken()
	raw, err := json.Marshal(Session{UserID: userID, Email: email, Name: name, CreatedAt: ss.now()})
	if err != nil {
		return "", err
	}
	if err := ss.backend.Set(ctx, sessionKey(token), raw, SessionTTL); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Get resolves a token.
// POST: found is false for unknown, malformed or expired sessions; expired ones are removed
func (ss *SessionStore) Get(ctx context.Context, token string) (Session, bool, error) {
	if token == "" {
		return Session{}, false, nil
	}
	raw, found, err := ss.backend.Get(ctx, sessionKey(token))
	if err != nil || !found {
		return Session{}, false, err
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil || session.UserID == "" {
		return Session{}, false, nil
	}
	if ss.now().Sub(session.CreatedAt) > SessionTTL {
		return Session{}, false, ss.Delete(ctx, token)
	}
	return session, true, nil
}

// Delete removes a session. Unknown tokens are ignored.
func (ss *SessionStore) Delete(ctx context.Context, token string) error {
	return ss.backend.Del(ctx, sessionKey(token))
}

func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return sessionKeyPrefix + hex.EncodeToString(sum[:])
}

const sessionCookieName = "wikimasters_session"

// Auth returns middleware that extracts the session from the cookie and sets the user in context.
// Anonymous requests pass through; handlers decide via CurrentUser. A backend
// failure is logged and the request continues anonymously.
func Auth(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := SessionToken(r); token != "" {
				session, ok, err := sessions.Get(r.Context(), token)
				if err != nil {
					slog.Warn("session_lookup_failed", "error", err)
				}
				if ok {
					r = r.WithContext(ContextWithSession(r.Context(), session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns middleware that rejects unauthenticated requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser returns the signed-in user for the request, if any.
func CurrentUser(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(userContextKey).(Session)
	return session, ok
}

// CurrentUserID returns the signed-in user's id, or "" for anonymous requests.
func CurrentUserID(ctx context.Context) string {
	session, _ := CurrentUser(ctx)
	return session.UserID
}

// SessionToken returns the raw session cookie value, or "" when absent.
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

// ContextWithSession returns a context with the given session set.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, userContextKey, sess)
}

// generateToken returns 128 bits of randomness as base32 text.
func generateToken() string {
	return rand.Text()
}

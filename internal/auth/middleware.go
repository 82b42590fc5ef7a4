package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware resolves the calling user from the session cookie or a bearer token.
type Middleware struct {
	sessions *Sessions
	issuer   *Issuer
	log      *slog.Logger
}

// NewMiddleware creates a Middleware.
func NewMiddleware(sessions *Sessions, issuer *Issuer, log *slog.Logger) *Middleware {
	return &Middleware{sessions: sessions, issuer: issuer, log: log}
}

// Require rejects requests without a valid session or bearer token with 401.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := m.resolve(r)
		if userID == "" {
			writeAuthError(w, "Please log in to continue")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// Optional attaches the user when one can be resolved and never rejects.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := m.resolve(r); userID != "" {
			r = r.WithContext(WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) resolve(r *http.Request) string {
	if id := m.sessions.UserID(r); id != "" {
		return id
	}
	token := BearerToken(r)
	if token == "" {
		return ""
	}
	id, err := m.issuer.Verify(token)
	if err != nil {
		m.log.Debug("rejecting bearer token", "method", r.Method, "path", r.URL.Path, "error", err)
		return ""
	}
	return id
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// UserID returns the authenticated user ID stored by the middleware, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Unauthenticated",
		"message": message,
	})
}

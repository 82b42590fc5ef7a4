package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// Cookie session settings.
const (
	SessionName = "market_session"
	sessionUser = "user_id"
)

// Sessions keeps the signed-in user ID in an authenticated cookie.
type Sessions struct {
	store  *sessions.CookieStore
	maxAge int
}

// NewSessions creates a cookie store keyed from secret. Cookies are marked Secure when secure is set.
func NewSessions(secret []byte, ttl time.Duration, secure bool) *Sessions {
	store := sessions.NewCookieStore(DeriveKey(secret, cookieKeyLabel))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store, maxAge: int(ttl.Seconds())}
}

// Save writes a session cookie for userID.
func (s *Sessions) Save(w http.ResponseWriter, r *http.Request, userID string) error {
	sess, err := s.store.Get(r, SessionName)
	if err != nil {
		// A cookie signed with an old secret; start over.
		sess, err = s.store.New(r, SessionName)
		if err != nil && sess == nil {
			return fmt.Errorf("new session: %w", err)
		}
	}
	sess.Values[sessionUser] = userID
	sess.Options.MaxAge = s.maxAge
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// UserID returns the user ID stored in the request's session cookie, or "".
func (s *Sessions) UserID(r *http.Request) string {
	sess, err := s.store.Get(r, SessionName)
	if err != nil || sess.IsNew {
		return ""
	}
	id, _ := sess.Values[sessionUser].(string)
	return id
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.store.Get(r, SessionName)
	if err != nil && sess == nil {
		return fmt.Errorf("get session: %w", err)
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"campusmart/internal/auth"
	"campusmart/internal/model"
	"campusmart/internal/storage"
)

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid JSON body")
		return
	}
	c.Name, c.Email = strings.TrimSpace(c.Name), strings.TrimSpace(c.Email)
	if c.Name == "" || !strings.Contains(c.Email, "@") {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Name and a valid email are required")
		return
	}
	hash, err := auth.HashPassword(c.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	u := &model.User{Name: c.Name, Email: c.Email, PasswordHash: hash}
	err = s.store.CreateUser(r.Context(), u)
	if errors.Is(err, storage.ErrDuplicate) {
		writeError(w, http.StatusConflict, "EmailTaken", "An account with this email already exists")
		return
	}
	if err != nil {
		s.log.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error creating account")
		return
	}
	s.log.Info("user signed up", "user_id", u.ID)
	s.signIn(w, r, u, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid JSON body")
		return
	}
	u, err := s.store.GetUserByEmail(r.Context(), strings.TrimSpace(c.Email))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("get user by email", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error logging in")
		return
	}
	if u == nil || auth.CheckPassword(u.PasswordHash, c.Password) != nil {
		writeError(w, http.StatusBadRequest, "InvalidCredentials", "Invalid email or password")
		return
	}
	s.signIn(w, r, u, http.StatusOK)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request, u *model.User, status int) {
	token, err := s.issuer.Issue(u.ID)
	if err != nil {
		s.log.Error("issue token", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error logging in")
		return
	}
	if err := s.sessions.Save(w, r, u.ID); err != nil {
		s.log.Error("save session", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error logging in")
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(w, r); err != nil {
		s.log.Warn("clear session", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUser(r.Context(), auth.UserID(r.Context()))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", "Account no longer exists")
		return
	}
	if err != nil {
		s.log.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error fetching user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WhatsApp string `json:"whatsapp"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid JSON body")
		return
	}
	number := strings.TrimSpace(body.WhatsApp)
	if !validPhone(number) {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "WhatsApp number must be digits with an optional leading +")
		return
	}

	userID := auth.UserID(r.Context())
	err := s.store.UpdateWhatsApp(r.Context(), userID, number)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", "Account no longer exists")
		return
	}
	if err != nil {
		s.log.Error("update whatsapp", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error updating number")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func validPhone(s string) bool {
	s = strings.TrimPrefix(s, "+")
	if len(s) < 7 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

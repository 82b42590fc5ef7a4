// Package server is the listings HTTP API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"campusmart/internal/auth"
	"campusmart/internal/storage"
	"campusmart/internal/upload"
)

// Page limits for GET /listings.
const (
	DefaultLimit = 20
	MaxLimit     = 100
	rssItems     = 50
)

// Deps are the collaborators of the API.
type Deps struct {
	Store     storage.Storage
	Relay     *upload.Relay
	Issuer    *auth.Issuer
	Sessions  *auth.Sessions
	PublicURL string
	// UploadDir is served under /uploads/ when set.
	UploadDir string
	Log       *slog.Logger
}

// Server serves the listings API.
type Server struct {
	store     storage.Storage
	relay     *upload.Relay
	issuer    *auth.Issuer
	sessions  *auth.Sessions
	auth      *auth.Middleware
	publicURL string
	uploadDir string
	log       *slog.Logger
}

// New creates a Server.
func New(d Deps) *Server {
	return &Server{
		store:     d.Store,
		relay:     d.Relay,
		issuer:    d.Issuer,
		sessions:  d.Sessions,
		auth:      auth.NewMiddleware(d.Sessions, d.Issuer, d.Log),
		publicURL: d.PublicURL,
		uploadDir: d.UploadDir,
		log:       d.Log,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/categories", s.handleCategories)

	r.Route("/listings", func(r chi.Router) {
		r.Get("/", s.handleListListings)
		r.Get("/rss", s.handleRSS)
		r.Get("/{id}", s.handleGetListing)
		r.With(s.auth.Require).Post("/", s.handleCreateListing)
	})

	r.With(s.auth.Require).Post("/upload", s.handleUpload)
	r.With(s.auth.Require).Get("/user-listings", s.handleUserListings)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.With(s.auth.Require).Get("/me", s.handleMe)
		r.With(s.auth.Require).Patch("/whatsapp", s.handleWhatsApp)
	})

	if s.uploadDir != "" {
		r.With(noSniff).Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	}
	return r
}

// noSniff stops browsers from second-guessing the stored image types.
func noSniff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

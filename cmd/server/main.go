package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"campusmart/internal/auth"
	"campusmart/internal/config"
	"campusmart/internal/server"
	"campusmart/internal/storage"
	"campusmart/internal/upload"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	log := cfg.NewLogger()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	var (
		host      upload.Host
		uploadDir string
	)
	if cfg.Cloudinary.Enabled() {
		cld, err := upload.NewCloudinary(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			log.Error("configure cloudinary", "error", err)
			os.Exit(1)
		}
		host = cld
		log.Info("storing images on cloudinary", "cloud", cfg.Cloudinary.CloudName)
	} else {
		local, err := upload.NewLocal(cfg.UploadDir, cfg.PublicURL)
		if err != nil {
			log.Error("create upload directory", "path", cfg.UploadDir, "error", err)
			os.Exit(1)
		}
		host, uploadDir = local, cfg.UploadDir
		log.Info("storing images on disk", "path", cfg.UploadDir)
	}

	secret := []byte(cfg.SessionSecret)
	srv := server.New(server.Deps{
		Store:     store,
		Relay:     upload.NewRelay(host),
		Issuer:    auth.NewIssuer(secret, cfg.TokenTTL),
		Sessions:  auth.NewSessions(secret, cfg.TokenTTL, strings.HasPrefix(cfg.PublicURL, "https://")),
		PublicURL: cfg.PublicURL,
		UploadDir: uploadDir,
		Log:       log,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	log.Info("starting server", "addr", cfg.ListenAddr, "public_url", cfg.PublicURL)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

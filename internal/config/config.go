// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSessionSecretLength is the shortest accepted SESSION_SECRET.
const MinSessionSecretLength = 32

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	ListenAddr    string
	PublicURL     string
	SessionSecret string
	TokenTTL      time.Duration
	UploadDir     string
	Cloudinary    CloudinaryConfig

	APIURL           string
	PageSize         int
	TelegramBotToken string
	AllowedUsers     []int64
}

// CloudinaryConfig holds the credentials of the hosted image service.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// Enabled reports whether all Cloudinary credentials are present.
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	pageSize, err := intEnv("PAGE_SIZE", 10)
	if err != nil {
		return nil, err
	}
	if pageSize < 1 || pageSize > 50 {
		return nil, fmt.Errorf("PAGE_SIZE must be between 1 and 50, got %d", pageSize)
	}

	ttlHours, err := intEnv("TOKEN_TTL_HOURS", 168)
	if err != nil {
		return nil, err
	}
	if ttlHours < 1 {
		return nil, fmt.Errorf("TOKEN_TTL_HOURS must be positive, got %d", ttlHours)
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		DatabasePath:  envOrDefault("DATABASE_PATH", "./data/market.db"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		ListenAddr:    envOrDefault("LISTEN_ADDR", ":8080"),
		PublicURL:     strings.TrimRight(envOrDefault("PUBLIC_URL", "http://localhost:8080"), "/"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		TokenTTL:      time.Duration(ttlHours) * time.Hour,
		UploadDir:     envOrDefault("UPLOAD_DIR", "./data/uploads"),
		Cloudinary: CloudinaryConfig{
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		},
		APIURL:           strings.TrimRight(envOrDefault("API_URL", "http://localhost:8080"), "/"),
		PageSize:         pageSize,
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AllowedUsers:     allowedUsers,
	}, nil
}

// ValidateServer checks the settings the HTTP API cannot start without.
func (c *Config) ValidateServer() error {
	if len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLength)
	}
	return nil
}

// ValidateBot checks the settings the Telegram bot cannot start without.
func (c *Config) ValidateBot() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

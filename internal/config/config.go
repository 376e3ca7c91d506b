// Package config loads Herald's configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port   string
	DBPath string

	JWTSecret string
	TokenTTL  time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	CheckInterval time.Duration
	WindowStart   time.Duration
	WindowEnd     time.Duration

	CORSOrigin string
	LogLevel   string
	LogJSON    bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present (ignored in production deployments
// that set real env vars). JWT_SECRET is the only hard requirement.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:            getenv("HERALD_PORT", "8080"),
		DBPath:          getenv("HERALD_DB_PATH", "herald.db"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TokenTTL:        getenvDuration("HERALD_TOKEN_TTL", 7*24*time.Hour),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getenv("VAPID_SUBJECT", "mailto:admin@example.com"),
		CheckInterval:   getenvDuration("HERALD_CHECK_INTERVAL", 5*time.Minute),
		WindowStart:     getenvDuration("HERALD_WINDOW_START", 25*time.Minute),
		WindowEnd:       getenvDuration("HERALD_WINDOW_END", 35*time.Minute),
		CORSOrigin:      getenv("CORS_ORIGIN", "http://localhost:5173"),
		LogLevel:        getenv("HERALD_LOG_LEVEL", "info"),
		LogJSON:         os.Getenv("HERALD_LOG_JSON") == "true",
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.WindowEnd <= cfg.WindowStart {
		return Config{}, fmt.Errorf("notification window end %s must be after start %s", cfg.WindowEnd, cfg.WindowStart)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process settings read from the environment.
type Config struct {
	Env            string
	ListenAddr     string
	DatabaseURL    string
	DBMaxConns     int
	RedisURL       string
	PreviewTTL     time.Duration
	JWTSecret      string
	LogLevel       string
	LogFormat      string
	AuditBuffer    int
	MigrateOnStart bool
}

// Load reads an optional .env file and then the process environment.
// DATABASE_URL and JWT_SECRET are required.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := Config{
		Env:            getString("APP_ENV", "development"),
		ListenAddr:     getString("LISTEN_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     getInt("DB_MAX_CONNS", 20),
		RedisURL:       os.Getenv("REDIS_URL"),
		PreviewTTL:     getDuration("PREVIEW_TTL", 2*time.Minute),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		LogLevel:       getString("LOG_LEVEL", "info"),
		LogFormat:      getString("LOG_FORMAT", "json"),
		AuditBuffer:    getInt("AUDIT_BUFFER", 256),
		MigrateOnStart: getBool("MIGRATE_ON_START", false),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

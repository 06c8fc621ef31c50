// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"lead-relay/internal/common/errors"
	"lead-relay/internal/oauth"
)

// Store backends selectable via STORE_BACKEND.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config holds everything the service reads from the environment.
type Config struct {
	// Port the HTTP server listens on.
	Port string
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string
	TLSKey  string

	// OAuth carries the provider application registration.
	OAuth oauth.AcquirerConfig

	// StoreBackend selects credential persistence: sqlite, postgres, redis
	// or memory.
	StoreBackend string
	// DBPath is the SQLite file path.
	DBPath string
	// PostgresURL is the pgx connection string.
	PostgresURL string
	// Redis connection settings.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EncryptionKey enables token encryption at rest when set.
	EncryptionKey string

	// Admin API settings.
	AdminSecret   string
	AdminUsername string
	AdminPassword string

	// RefreshSchedule is a cron expression for proactive refresh; empty
	// disables the worker.
	RefreshSchedule  string
	RefreshLookahead time.Duration
}

// Load reads the configuration from environment variables, applying defaults
// where a value is optional.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		TLSCert: os.Getenv("TLS_CERT"),
		TLSKey:  os.Getenv("TLS_KEY"),

		OAuth: oauth.AcquirerConfig{
			ClientID:     os.Getenv("OAUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
			AuthURL:      os.Getenv("OAUTH_AUTH_URL"),
			TokenURL:     os.Getenv("OAUTH_TOKEN_URL"),
			RedirectURL:  os.Getenv("OAUTH_REDIRECT_URL"),
			Scope:        getEnv("OAUTH_SCOPE", "crm"),
		},

		StoreBackend:  getEnv("STORE_BACKEND", StoreSQLite),
		DBPath:        getEnv("DB_PATH", "lead-relay.db"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),

		AdminSecret:   os.Getenv("ADMIN_TOKEN_SECRET"),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		RefreshSchedule:  os.Getenv("REFRESH_SCHEDULE"),
		RefreshLookahead: 10 * time.Minute,
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.ConfigError("REDIS_DB must be an integer")
		}
		cfg.RedisDB = db
	}

	if v := os.Getenv("REFRESH_LOOKAHEAD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.ConfigError("REFRESH_LOOKAHEAD must be a duration like 10m")
		}
		cfg.RefreshLookahead = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if err := c.OAuth.Validate(); err != nil {
		return err
	}

	switch c.StoreBackend {
	case StoreSQLite:
		if c.DBPath == "" {
			return errors.ConfigError("DB_PATH is required for the sqlite backend")
		}
	case StorePostgres:
		if c.PostgresURL == "" {
			return errors.ConfigError("POSTGRES_URL is required for the postgres backend")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.ConfigError("REDIS_ADDR is required for the redis backend")
		}
	case StoreMemory:
	default:
		return errors.ConfigError("STORE_BACKEND must be sqlite, postgres, redis or memory")
	}

	if c.AdminSecret != "" && c.AdminPassword == "" {
		return errors.ConfigError("ADMIN_PASSWORD is required when the admin API is enabled")
	}

	return nil
}

// AdminEnabled reports whether the admin API should be mounted.
func (c *Config) AdminEnabled() bool {
	return c.AdminSecret != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

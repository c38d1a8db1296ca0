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

// Config holds all configuration values for the application
type Config struct {
	Port            string
	AllowedOrigins  []string
	LogLevel        string
	DatabaseURL     string
	DatabaseReadURL string // Read replica URL for SELECT queries
	RedisURL        string
	Environment     string
	ServiceVersion  string

	// SiteURL is the public root used as the last page_url fallback and in exports
	SiteURL          string
	DestinationPhone string

	NonceSecret     string
	NonceTTL        time.Duration
	SessionSecret   string
	AdminJWTSecret  string
	AdminAllowedIPs []string

	RatePerWindow     int
	RateWindowSeconds int
	DefaultPageSize   int
	MaxPageSize       int
	MaxLookbackDays   int
	CursorTTLSeconds  int

	// SchemaVersion overrides the migration version read at startup when > 0
	SchemaVersion int
	AutoMigrate   bool

	HubEndpoint     string
	HubHost         string
	HubToken        string
	HubSyncInterval time.Duration
	HubBatchSize    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		AllowedOrigins:  parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseReadURL: getEnv("DATABASE_READ_URL", getEnv("DATABASE_URL", "")), // Falls back to write DB if not set
		RedisURL:        getEnv("REDIS_URL", ""),
		Environment:     getEnv("ENVIRONMENT", "production"),
		ServiceVersion:  getEnv("SERVICE_VERSION", "1.3.0"),

		SiteURL:          strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
		DestinationPhone: getEnv("DESTINATION_PHONE", ""),

		NonceSecret:     getEnv("NONCE_SECRET", ""),
		NonceTTL:        getDurationEnv("NONCE_TTL", 12*time.Hour),
		SessionSecret:   getEnv("SESSION_SECRET", ""),
		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
		AdminAllowedIPs: parseList(getEnv("ADMIN_ALLOWED_IPS", "")),

		RatePerWindow:     getIntEnv("RATE_PER_WINDOW", 60),
		RateWindowSeconds: getIntEnv("RATE_WINDOW_SECONDS", 60),
		DefaultPageSize:   getIntEnv("DEFAULT_PAGE_SIZE", 200),
		MaxPageSize:       getIntEnv("MAX_PAGE_SIZE", 500),
		MaxLookbackDays:   getIntEnv("MAX_LOOKBACK_DAYS", 180),
		CursorTTLSeconds:  getIntEnv("CURSOR_TTL_SECONDS", 86400),

		SchemaVersion: getIntEnv("SCHEMA_VERSION", 0),
		AutoMigrate:   getBoolEnv("AUTO_MIGRATE", true),

		HubEndpoint:     getEnv("HUB_ENDPOINT", ""),
		HubHost:         getEnv("HUB_HOST", ""),
		HubToken:        getEnv("HUB_TOKEN", ""),
		HubSyncInterval: getDurationEnv("HUB_SYNC_INTERVAL", 10*time.Minute),
		HubBatchSize:    getIntEnv("HUB_BATCH_SIZE", 500),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.MaxPageSize < 1 {
		errs = append(errs, fmt.Errorf("MAX_PAGE_SIZE must be positive, got %d", c.MaxPageSize))
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > c.MaxPageSize {
		errs = append(errs, fmt.Errorf("DEFAULT_PAGE_SIZE must be within [1, %d], got %d", c.MaxPageSize, c.DefaultPageSize))
	}
	if c.RatePerWindow < 1 || c.RateWindowSeconds < 1 {
		errs = append(errs, errors.New("RATE_PER_WINDOW and RATE_WINDOW_SECONDS must be positive"))
	}
	if c.MaxLookbackDays < 1 {
		errs = append(errs, fmt.Errorf("MAX_LOOKBACK_DAYS must be positive, got %d", c.MaxLookbackDays))
	}
	if c.IsProduction() {
		if c.NonceSecret == "" {
			errs = append(errs, errors.New("NONCE_SECRET is required in production"))
		}
		if c.AdminJWTSecret == "" {
			errs = append(errs, errors.New("ADMIN_JWT_SECRET is required in production"))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the HTTPS enforcer and strict secrets apply
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HubEnabled reports whether the best-effort hub forwarder should run
func (c *Config) HubEnabled() bool {
	return c.HubEndpoint != "" && c.HubHost != "" && c.HubToken != ""
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseList parses a comma-separated list into a slice
func parseList(raw string) []string {
	if raw == "" {
		return []string{}
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

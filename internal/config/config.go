// Package config provides centralized configuration loaded from environment
// variables plus the providers file. Shared by both cmd/api and cmd/importer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Provider registry
// --------------------------------------------------------------------------

// Provider names accepted by the orchestrator, CLI and trigger endpoint.
const (
	ProviderCBIS        = "cbis"
	ProviderXCAP        = "xcap"
	ProviderTransTicket = "transticket"
	ProviderArcGIS      = "arcgis"
)

// ProviderNames lists the providers in the order the scheduler starts them.
var ProviderNames = []string{ProviderCBIS, ProviderXCAP, ProviderTransTicket, ProviderArcGIS}

// --------------------------------------------------------------------------
// Table names (single source of truth, matches migrations/)
// --------------------------------------------------------------------------

const (
	EventsTable          = "events"
	LocationsTable       = "locations"
	ContactsTable        = "contacts"
	EventContactsTable   = "event_contacts"
	EventCategoriesTable = "event_categories"
	OccasionsTable       = "occasions"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production

	// CORS
	CORSAllowOrigins []string

	// Response cache
	CacheEnabled bool

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Import
	ProvidersFile     string
	ProviderRateLimit int // requests per minute per provider client
	FuzzyThreshold    float64
	Location          *time.Location
	ImportInterval    time.Duration
	SweepInterval     time.Duration
	RunStatusTTL      time.Duration
	RunLockTTL        time.Duration // refreshed on every progress report
	RedisURL          string
	Providers         Providers
}

// Load reads configuration from environment variables with sensible defaults.
// When PROVIDERS_FILE is set the provider credential lists are read from it.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	tz := envOr("TIMEZONE", "Europe/Stockholm")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		CacheEnabled: envBool("CACHE_ENABLED", true),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		ProvidersFile:     envOr("PROVIDERS_FILE", ""),
		ProviderRateLimit: envInt("PROVIDER_REQUESTS_PER_MINUTE", 120),
		FuzzyThreshold:    envFloat("FUZZY_THRESHOLD", 0.2),
		Location:          loc,
		ImportInterval:    time.Duration(envInt("IMPORT_INTERVAL_MINUTES", 60)) * time.Minute,
		SweepInterval:     time.Duration(envInt("SWEEP_INTERVAL_HOURS", 24)) * time.Hour,
		RunStatusTTL:      time.Duration(envInt("RUN_STATUS_TTL_MINUTES", 60)) * time.Minute,
		RunLockTTL:        time.Duration(envInt("RUN_LOCK_TTL_MINUTES", 15)) * time.Minute,
		RedisURL:          envOr("REDIS_URL", ""),
		Providers:         Providers{},
	}

	if cfg.ProvidersFile != "" {
		providers, err := LoadProviders(cfg.ProvidersFile)
		if err != nil {
			return nil, err
		}
		cfg.Providers = providers
	}

	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

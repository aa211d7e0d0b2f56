// Package handler provides HTTP handlers for the import API: starting and
// polling interactive runs, the action endpoint, and occasion summaries.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/eventhub/event-importer/internal/api/respond"
	"github.com/eventhub/event-importer/internal/cache"
	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/occasion"
	"github.com/eventhub/event-importer/internal/runs"
)

// Pinger checks database connectivity.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Runs starts, reports and cancels interactive import runs.
type Runs interface {
	Start(ctx context.Context, provider string) (string, error)
	Get(id string) (runs.Snapshot, bool)
	Cancel(id string) bool
}

// OccasionCounter returns aggregate occasion numbers.
type OccasionCounter interface {
	Counts(ctx context.Context, now time.Time) (occasion.Counts, error)
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db        Pinger
	cache     *cache.Cache
	runs      Runs
	occasions OccasionCounter
	providers config.Providers
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Handler with shared dependencies.
func New(db Pinger, c *cache.Cache, r Runs, occasions OccasionCounter, providers config.Providers, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.New(false)
	}
	return &Handler{
		db:        db,
		cache:     c,
		runs:      r,
		occasions: occasions,
		providers: providers,
		logger:    logger,
		now:       time.Now,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status and the configured providers.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":      "Event Importer API",
		"version":   "1.0.0",
		"status":    "running",
		"docs":      "/docs",
		"providers": config.ProviderNames,
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

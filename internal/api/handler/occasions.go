package handler

import (
	"net/http"

	"github.com/eventhub/event-importer/internal/api/respond"
	"github.com/eventhub/event-importer/internal/cache"
	"github.com/eventhub/event-importer/internal/config"
)

// Cache keys. OccasionSummaryKey is dropped after cron passes and sweeps.
const (
	OccasionSummaryKey = "occasions:summary"
	providersKey       = "providers"
)

// GetOccasionSummary returns aggregate occasion counts.
// @Summary Occasion summary
// @Description Returns total, upcoming and expired occasion counts and the number of events with occasions. Cached briefly with ETag support.
// @Tags occasions
// @Produce json
// @Success 200 {object} occasion.Counts
// @Success 304
// @Failure 500 {object} respond.ErrorResponse
// @Router /occasions/summary [get]
func (h *Handler) GetOccasionSummary(w http.ResponseWriter, r *http.Request) {
	ttl := cache.TTLOccasionSummary
	if data, etag, ok := h.cache.Get(OccasionSummaryKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	counts, err := h.occasions.Counts(r.Context(), h.now())
	if err != nil {
		h.logger.Error("Failed to count occasions", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not count occasions")
		return
	}
	raw, err := respond.Render(counts)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	etag := h.cache.Set(OccasionSummaryKey, raw, ttl)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, raw, etag, ttl, false)
}

// collectOccasions answers the collect_occasions action uncached.
func (h *Handler) collectOccasions(w http.ResponseWriter, r *http.Request) {
	counts, err := h.occasions.Counts(r.Context(), h.now())
	if err != nil {
		h.logger.Error("Failed to collect occasions", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not count occasions")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, counts)
}

type providerInfo struct {
	Name       string   `json:"name"`
	Cron       bool     `json:"cron"`
	PostStatus string   `json:"post_status"`
	Keys       []string `json:"keys"`
}

// GetProviders lists the configured providers with their key labels.
// Credentials are never included.
// @Summary Configured providers
// @Tags import
// @Produce json
// @Success 200 {array} providerInfo
// @Router /providers [get]
func (h *Handler) GetProviders(w http.ResponseWriter, r *http.Request) {
	ttl := cache.TTLProviders
	if data, etag, ok := h.cache.Get(providersKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	out := make([]providerInfo, 0, len(config.ProviderNames))
	for _, name := range config.ProviderNames {
		pc, ok := h.providers[name]
		if !ok {
			continue
		}
		info := providerInfo{Name: name, Cron: pc.Cron, PostStatus: pc.PostStatus, Keys: []string{}}
		for _, k := range pc.Keys {
			info.Keys = append(info.Keys, k.Label())
		}
		out = append(out, info)
	}
	raw, err := respond.Render(out)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	etag := h.cache.Set(providersKey, raw, ttl)
	respond.WriteJSON(w, raw, etag, ttl, false)
}

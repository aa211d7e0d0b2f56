package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eventhub/event-importer/internal/api/respond"
	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/importer"
	"github.com/eventhub/event-importer/internal/runs"
)

// Action names accepted by POST /actions/{action}.
const (
	ActionCollectOccasions = "collect_occasions"
	actionImportPrefix     = "import_"
)

// StartImport starts an interactive import of one provider.
// @Summary Start an import run
// @Description Starts an interactive run over every configured key of the provider. Only one interactive run may be active at a time.
// @Tags import
// @Produce json
// @Param provider path string true "Provider" Enums(cbis, xcap, transticket, arcgis)
// @Success 202 {object} map[string]string
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Failure 422 {object} respond.ErrorResponse
// @Router /import/{provider} [post]
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	h.startImport(w, r, strings.ToLower(chi.URLParam(r, "provider")))
}

func (h *Handler) startImport(w http.ResponseWriter, r *http.Request, provider string) {
	if !config.IsKnownProvider(provider) {
		respond.WriteError(w, http.StatusNotFound, "UNKNOWN_PROVIDER", "Unknown provider: "+provider)
		return
	}

	id, err := h.runs.Start(r.Context(), provider)
	switch {
	case errors.Is(err, runs.ErrInProgress):
		respond.WriteError(w, http.StatusConflict, "IMPORT_IN_PROGRESS", "An import run is already in progress")
		return
	case errors.Is(err, importer.ErrConfig):
		respond.WriteErrorDetail(w, http.StatusUnprocessableEntity, "NOT_CONFIGURED",
			"Provider has no usable configuration", err.Error())
		return
	case err != nil:
		h.logger.Error("Failed to start import", "provider", provider, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not start import")
		return
	}

	w.Header().Set("Location", "/api/v1/import/runs/"+id)
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]string{
		"run_id":   id,
		"provider": provider,
	})
}

// GetRun reports the progress of an interactive run.
// @Summary Get an import run
// @Description Returns counters, failures and warnings of a running or recently finished run.
// @Tags import
// @Produce json
// @Param runID path string true "Run id"
// @Success 200 {object} runs.Snapshot
// @Failure 404 {object} respond.ErrorResponse
// @Router /import/runs/{runID} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	snap, ok := h.runs.Get(id)
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "RUN_NOT_FOUND", "No run with id "+id)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	respond.WriteJSONObject(w, http.StatusOK, snap)
}

// CancelRun cancels a running interactive run. The run stops between pages
// and reports state "cancelled" with its partial counters.
// @Summary Cancel an import run
// @Tags import
// @Produce json
// @Param runID path string true "Run id"
// @Success 202 {object} map[string]string
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /import/runs/{runID} [delete]
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	if _, ok := h.runs.Get(id); !ok {
		respond.WriteError(w, http.StatusNotFound, "RUN_NOT_FOUND", "No run with id "+id)
		return
	}
	if !h.runs.Cancel(id) {
		respond.WriteError(w, http.StatusConflict, "RUN_FINISHED", "Run already finished")
		return
	}
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]string{"run_id": id, "state": "cancelling"})
}

// Action dispatches the fixed administrator actions.
// @Summary Run an administrator action
// @Description import_cbis, import_xcap, import_transticket and import_arcgis start an interactive run; collect_occasions returns aggregate occasion counts.
// @Tags import
// @Produce json
// @Param action path string true "Action" Enums(import_cbis, import_xcap, import_transticket, import_arcgis, collect_occasions)
// @Success 200 {object} occasion.Counts
// @Success 202 {object} map[string]string
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /actions/{action} [post]
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	action := strings.ToLower(chi.URLParam(r, "action"))
	if action == ActionCollectOccasions {
		h.collectOccasions(w, r)
		return
	}
	if provider, ok := strings.CutPrefix(action, actionImportPrefix); ok && config.IsKnownProvider(provider) {
		h.startImport(w, r, provider)
		return
	}
	respond.WriteError(w, http.StatusNotFound, "UNKNOWN_ACTION", "Unknown action: "+action)
}

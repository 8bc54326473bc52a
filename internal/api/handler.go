// Package api exposes the settings registry and the diagnostics engine
// over a JSON REST surface. It is a consumer of the core packages; no
// HTTP types leak into them.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/corestate/corestate/internal/diagnostics"
	"github.com/corestate/corestate/internal/settings"
)

// Handler serves the admin API.
type Handler struct {
	registry *settings.Registry
	diag     *diagnostics.Manager
	logger   *logrus.Logger
}

// NewHandler creates an API handler over the given engines.
func NewHandler(registry *settings.Registry, diag *diagnostics.Manager, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		registry: registry,
		diag:     diag,
		logger:   logger,
	}
}

// RegisterRoutes registers all admin API routes on the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.handleHealth).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/settings", h.handleListSettings).Methods("GET")
	api.HandleFunc("/settings/categories", h.handleListCategories).Methods("GET")
	api.HandleFunc("/settings/search", h.handleSearchSettings).Methods("GET")
	api.HandleFunc("/settings/export", h.handleExportSettings).Methods("GET")
	api.HandleFunc("/settings/import", h.handleImportSettings).Methods("POST")
	api.HandleFunc("/settings/reset", h.handleResetAllSettings).Methods("POST")
	api.HandleFunc("/settings/{key}", h.handleGetSetting).Methods("GET")
	api.HandleFunc("/settings/{key}", h.handlePutSetting).Methods("PUT")
	api.HandleFunc("/settings/{key}/reset", h.handleResetSetting).Methods("POST")

	api.HandleFunc("/errors", h.handleListErrors).Methods("GET")
	api.HandleFunc("/errors", h.handleClearErrors).Methods("DELETE")
	api.HandleFunc("/errors/resolved", h.handleClearResolved).Methods("DELETE")
	api.HandleFunc("/errors/stats", h.handleErrorStats).Methods("GET")
	api.HandleFunc("/errors/export", h.handleExportErrors).Methods("GET")
	api.HandleFunc("/errors/{id}/resolve", h.handleResolveError).Methods("POST")
	api.HandleFunc("/errors/{id}/retry", h.handleRetryError).Methods("POST")
}

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
	h.logger.WithField("error", message).WithField("status", statusCode).Warn("API error")
}

// writeSettingsError maps the settings error taxonomy onto status codes.
func (h *Handler) writeSettingsError(w http.ResponseWriter, err error) {
	var storageErr *settings.StorageError
	switch {
	case errors.Is(err, settings.ErrUnregisteredKey):
		h.writeError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &storageErr):
		h.writeError(w, err.Error(), http.StatusBadGateway)
	default:
		// Validation, type, and range failures.
		h.writeError(w, err.Error(), http.StatusUnprocessableEntity)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "healthy"})
}

func (h *Handler) handleListSettings(w http.ResponseWriter, r *http.Request) {
	type categorySettings struct {
		Category settings.Category `json:"category"`
		Settings []settings.Entry  `json:"settings"`
	}

	cats := h.registry.Categories()
	out := make([]categorySettings, 0, len(cats))
	for _, cat := range cats {
		out = append(out, categorySettings{
			Category: cat,
			Settings: h.registry.ByCategory(cat.ID),
		})
	}
	h.writeJSON(w, out)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.registry.Categories())
}

func (h *Handler) handleSearchSettings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	h.writeJSON(w, h.registry.Search(query))
}

func (h *Handler) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, ok := h.registry.GetValue(key)
	if !ok {
		h.writeError(w, "unregistered setting key: "+key, http.StatusNotFound)
		return
	}

	h.writeJSON(w, map[string]any{
		"definition": h.registry.Definition(key),
		"value":      value,
	})
}

func (h *Handler) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.registry.Set(r.Context(), key, body.Value); err != nil {
		h.writeSettingsError(w, err)
		return
	}

	value, _ := h.registry.GetValue(key)
	h.writeJSON(w, value)
}

func (h *Handler) handleResetSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := h.registry.Reset(r.Context(), key); err != nil {
		h.writeSettingsError(w, err)
		return
	}

	value, _ := h.registry.GetValue(key)
	h.writeJSON(w, value)
}

func (h *Handler) handleResetAllSettings(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	var err error
	if category != "" {
		err = h.registry.ResetCategory(r.Context(), category)
	} else {
		err = h.registry.ResetAll(r.Context())
	}
	if err != nil {
		h.writeSettingsError(w, err)
		return
	}

	h.writeJSON(w, map[string]string{"status": "reset"})
}

func (h *Handler) handleExportSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.registry.ExportSettings())
}

func (h *Handler) handleImportSettings(w http.ResponseWriter, r *http.Request) {
	var exp settings.Export
	if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
		h.writeError(w, "invalid import payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, h.registry.ImportSettings(r.Context(), exp))
}

func (h *Handler) handleListErrors(w http.ResponseWriter, r *http.Request) {
	errs := h.diag.Errors()
	if r.URL.Query().Get("unresolved") == "true" {
		filtered := make([]diagnostics.AppError, 0, len(errs))
		for _, e := range errs {
			if !e.Resolved {
				filtered = append(filtered, e)
			}
		}
		errs = filtered
	}
	h.writeJSON(w, errs)
}

func (h *Handler) handleErrorStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.diag.Stats())
}

func (h *Handler) handleExportErrors(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.diag.ExportErrors())
}

func (h *Handler) handleResolveError(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.errorExists(id) {
		h.writeError(w, "unknown error id: "+id, http.StatusNotFound)
		return
	}

	h.diag.Resolve(id)
	h.writeJSON(w, map[string]string{"status": "resolved"})
}

func (h *Handler) handleRetryError(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.errorExists(id) {
		h.writeError(w, "unknown error id: "+id, http.StatusNotFound)
		return
	}

	h.diag.Retry(id, nil)
	h.writeJSON(w, map[string]string{"status": "retried"})
}

func (h *Handler) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	h.diag.ClearErrors()
	h.writeJSON(w, map[string]string{"status": "cleared"})
}

func (h *Handler) handleClearResolved(w http.ResponseWriter, r *http.Request) {
	h.diag.ClearResolved()
	h.writeJSON(w, map[string]string{"status": "cleared"})
}

func (h *Handler) errorExists(id string) bool {
	for _, e := range h.diag.Errors() {
		if e.ID == id {
			return true
		}
	}
	return false
}

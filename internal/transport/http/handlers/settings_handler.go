package handlers

import (
	"net/http"

	"github.com/vedran77/parley/internal/service"
	"github.com/vedran77/parley/internal/transport/http/middleware"
)

type SettingsHandler struct {
	settings *service.SettingsService
}

func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	settings, err := h.settings.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "get settings", err)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.UpdateSettingsInput
	if !decodeValid(w, r, &input) {
		return
	}

	settings, err := h.settings.Update(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, "update settings", err)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

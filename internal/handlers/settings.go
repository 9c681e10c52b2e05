package handlers

import (
	"encoding/json"
	"net/http"

	"audit-trail-go/internal/models"
)

// GetSettingsHandler returns the recognized options.
func (h *Handler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Settings.GetSettings(r.Context())
	if err != nil {
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"settings": settings})
}

// UpdateSettingsHandler replaces the options wholesale.
func (h *Handler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.AccessMode != models.AccessModeOnlyMe && req.AccessMode != models.AccessModeUserRoles {
		http.Error(w, "Invalid access mode", http.StatusBadRequest)
		return
	}
	if !req.Retention.KeepForever {
		switch req.Retention.Unit {
		case models.RetentionDays, models.RetentionWeeks, models.RetentionMonths, models.RetentionYears:
		default:
			http.Error(w, "Invalid retention unit", http.StatusBadRequest)
			return
		}
		if req.Retention.Quantity < 1 {
			http.Error(w, "Invalid retention quantity", http.StatusBadRequest)
			return
		}
	}

	if err := h.Settings.SaveSettings(r.Context(), req); err != nil {
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

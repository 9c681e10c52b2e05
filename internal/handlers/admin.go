package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"audit-trail-go/internal/metrics"
	"audit-trail-go/internal/models"
)

// === Viewer account management ===

func (h *Handler) GetUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.Admin.GetUsers(r.Context())
	if err != nil {
		http.Error(w, "Failed to get users", http.StatusInternalServerError)
		return
	}

	respUsers := make([]map[string]any, 0, len(users))
	for _, u := range users {
		respUsers = append(respUsers, map[string]any{
			"id":            u.ID,
			"username":      u.Username,
			"display_name":  u.DisplayName,
			"role":          u.Role,
			"totp_enabled":  u.TOTPEnabled,
			"created_at":    u.CreatedAt,
			"last_password": u.LastPasswordChange,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"users": respUsers})
}

func (h *Handler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		Role        string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !models.ValidRole(req.Role) {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	user, err := h.Admin.CreateUser(r.Context(), req.Username, req.DisplayName, req.Password, req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAdminAction(r, "User Created", user.ID, user.Username, models.Details{
		{Label: "Username", Value: req.Username},
		{Label: "Role", Value: req.Role},
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "user": user})
}

func (h *Handler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !models.ValidRole(req.Role) {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	if err := h.Admin.UpdateUser(r.Context(), id, req.Username, req.DisplayName, req.Role); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAdminAction(r, "User Updated", id, req.Username, models.Details{
		{Label: "Username", Value: req.Username},
		{Label: "Role", Value: req.Role},
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (h *Handler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	target, _ := h.Admin.GetUser(r.Context(), id)

	if err := h.Admin.DeleteUser(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAdminAction(r, "User Deleted", id, target.Username, models.Details{
		{Label: "Username", Value: target.Username},
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// logAdminAction records management actions performed inside the log
// viewer itself, mirroring how CMS-side events reach the store.
func (h *Handler) logAdminAction(r *http.Request, eventType string, targetID int, targetLabel string, details models.Details) {
	actorID, _, actorRole := GetCurrentUser(r)
	if actorID == 0 {
		return
	}
	actor := int64(actorID)

	event := &models.Event{
		DateTime:    time.Now().UTC(),
		UserID:      &actor,
		UserRole:    actorRole,
		SourceIP:    clientIP(r),
		EventType:   eventType,
		ObjectType:  models.ObjectUser,
		ObjectID:    strconv.Itoa(targetID),
		ObjectLabel: targetLabel,
		Details:     details,
	}

	if _, err := h.Events.AppendEvent(r.Context(), event); err != nil {
		log.Printf("Failed to log admin action %q: %v", eventType, err)
		return
	}
	metrics.EventsRecorded.WithLabelValues(string(models.ObjectUser)).Inc()
}

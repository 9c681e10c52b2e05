package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"strings"

	"audit-trail-go/internal/metrics"
	"audit-trail-go/internal/models"
	"audit-trail-go/internal/recorder"
)

// IngestHandler receives one webhook delivery from the CMS: one logical
// user action carrying one or more lifecycle callbacks. Deliveries are
// authenticated either by HMAC shared secret or by the API access key
// configured in settings.
func (h *Handler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	settings, err := h.Settings.GetSettings(r.Context())
	if err != nil {
		settings = models.DefaultSettings()
	}

	if !h.authorizeDelivery(r, settings.APIAccessKey) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var delivery recorder.Delivery
	if err := json.NewDecoder(r.Body).Decode(&delivery); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if delivery.SourceIP == "" {
		delivery.SourceIP = clientIP(r)
	}

	// Actors outside the tracked-roles option are not recorded at all.
	if delivery.Actor.Role != "" && !settings.Tracked(delivery.Actor.Role) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "skipped", "recorded": 0})
		return
	}

	recorded, err := h.Recorder.Process(r.Context(), delivery)
	if err != nil {
		if errors.Is(err, models.ErrInvalidObjectType) || errors.Is(err, models.ErrMissingObjectID) {
			metrics.EventsRejected.Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Println("Failed to record delivery:", err)
		http.Error(w, "Failed to record delivery", http.StatusInternalServerError)
		return
	}

	for _, event := range recorded {
		metrics.EventsRecorded.WithLabelValues(string(event.ObjectType)).Inc()
		if err := h.Feed.PublishEvent(r.Context(), event); err != nil {
			log.Println("Failed to publish event:", err)
		}
		if strings.HasSuffix(event.EventType, "Deleted") || strings.HasSuffix(event.EventType, "Trashed") {
			go h.SendPushNotification(event.EventType + ": " + event.ObjectLabel)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"recorded": len(recorded),
	})
}

// authorizeDelivery accepts the delivery when either the HMAC signature or
// the configured API access key matches. A configured key fails closed: a
// delivery presenting no credential at all is refused. Only with neither
// mechanism configured are deliveries open (local installs).
func (h *Handler) authorizeDelivery(r *http.Request, accessKey string) bool {
	if key := r.Header.Get("X-Audit-Key"); key != "" {
		return accessKey != "" && key == accessKey
	}
	if os.Getenv("AUDIT_WEBHOOK_SECRET") != "" {
		return validateSharedSecret(r)
	}
	return accessKey == ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

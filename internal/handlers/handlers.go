package handlers

import (
	"fmt"
	"html/template"
	"log"
	"net/http"

	"audit-trail-go/internal/recorder"
	"audit-trail-go/internal/store"
)

type Handler struct {
	Events    store.EventStore
	Objects   store.ObjectStore
	Admin     store.AdminStore
	Settings  store.SettingsStore
	Feed      *store.RedisStore
	Recorder  *recorder.Recorder
	Tmpl      *template.Template
	AdminTmpl map[string]*template.Template
}

func NewHandler(events store.EventStore, objects store.ObjectStore, admin store.AdminStore,
	settings store.SettingsStore, feed *store.RedisStore, rec *recorder.Recorder,
	tmpl *template.Template, adminTmpl map[string]*template.Template) *Handler {
	return &Handler{
		Events:    events,
		Objects:   objects,
		Admin:     admin,
		Settings:  settings,
		Feed:      feed,
		Recorder:  rec,
		Tmpl:      tmpl,
		AdminTmpl: adminTmpl,
	}
}

func (h *Handler) RenderAdminPage(w http.ResponseWriter, page string, data any) {
	if tmpl, ok := h.AdminTmpl[page]; ok {
		if err := tmpl.Execute(w, data); err != nil {
			log.Println("Template error:", err)
			http.Error(w, "Template error", http.StatusInternalServerError)
		}
	} else {
		http.Error(w, "Page not found", http.StatusNotFound)
	}
}

func (h *Handler) AdminLoginPage(w http.ResponseWriter, r *http.Request) {
	h.RenderAdminPage(w, "login", nil)
}

func (h *Handler) AdminDashboardPage(w http.ResponseWriter, r *http.Request) {
	userID, username, _ := GetCurrentUser(r)
	h.RenderAdminPage(w, "dashboard", map[string]any{
		"UserID":   userID,
		"Username": username,
	})
}

// IndexHandler renders the public landing page with the most recent events
// visible to anonymous viewers (none unless the viewer logs in; the page
// itself only links to the admin login).
func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if err := h.Tmpl.Execute(w, nil); err != nil {
		log.Println("template error:", err)
	}
}

// SSEHandler streams appended events live to the dashboard.
func (h *Handler) SSEHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	pubsub := h.Feed.Subscribe(r.Context())
	defer pubsub.Close()

	ch := pubsub.Channel()

	fmt.Fprintf(w, "data: %s\n\n", "connected")
	w.(http.Flusher).Flush()

	for {
		select {
		case msg := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			w.(http.Flusher).Flush()
		case <-r.Context().Done():
			return
		}
	}
}

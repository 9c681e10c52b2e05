package handlers

import (
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"audit-trail-go/internal/metrics"
	"audit-trail-go/internal/models"
	"audit-trail-go/internal/store"
)

// gridColumnNames maps the widget's column indexes onto sort keys. The
// details column is not sortable; an index pointing at it (or out of
// range) falls through to the store's default ordering.
var gridColumnNames = []string{"id", "date_time", "user", "source_ip", "event_type", "object", "details"}

// gridRequest is the server-side-processing request the grid widget sends.
type gridRequest struct {
	Draw   int `json:"draw"`
	Start  int `json:"start"`
	Length int `json:"length"`
	Order  []struct {
		Column int    `json:"column"`
		Dir    string `json:"dir"`
	} `json:"order"`
	Search struct {
		Value string `json:"value"`
	} `json:"search"`
}

// gridRow is one display-ready row. HTML fragments are pre-escaped here so
// the widget can insert them directly.
type gridRow struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	SourceIP  string `json:"source_ip"`
	EventType string `json:"event_type"`
	Object    string `json:"object"`
	Details   string `json:"details"`
}

func parseGridRequest(r *http.Request) gridRequest {
	var req gridRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			return req
		}
	}

	q := r.URL.Query()
	req.Draw, _ = strconv.Atoi(q.Get("draw"))
	req.Start, _ = strconv.Atoi(q.Get("start"))
	req.Length, _ = strconv.Atoi(q.Get("length"))
	req.Search.Value = q.Get("search[value]")
	if col, err := strconv.Atoi(q.Get("order[0][column]")); err == nil {
		req.Order = append(req.Order, struct {
			Column int    `json:"column"`
			Dir    string `json:"dir"`
		}{Column: col, Dir: q.Get("order[0][dir]")})
	}
	return req
}

func (req gridRequest) toQuery() store.EventQuery {
	q := store.EventQuery{
		Search: req.Search.Value,
		Limit:  req.Length,
		Offset: req.Start,
	}
	if len(req.Order) > 0 {
		col := req.Order[0].Column
		if col >= 0 && col < len(gridColumnNames) {
			q.SortColumn = gridColumnNames[col]
		}
		q.SortDir = req.Order[0].Dir
	}
	return q
}

// EventsGridHandler serves one page of the admin log grid.
func (h *Handler) EventsGridHandler(w http.ResponseWriter, r *http.Request) {
	metrics.GridQueries.Inc()

	req := parseGridRequest(r)
	page, err := h.Events.QueryEvents(r.Context(), req.toQuery())
	if err != nil {
		log.Println("Event query failed:", err)
		http.Error(w, "Query failed", http.StatusInternalServerError)
		return
	}

	settings, err := h.Settings.GetSettings(r.Context())
	if err != nil {
		settings = models.DefaultSettings()
	}

	rows := make([]gridRow, 0, len(page.Events))
	for _, event := range page.Events {
		rows = append(rows, h.formatRow(r, event, settings))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"draw":            req.Draw,
		"recordsTotal":    page.TotalCount,
		"recordsFiltered": page.FilteredCount,
		"data":            rows,
	})
}

func (h *Handler) formatRow(r *http.Request, event models.Event, settings models.Settings) gridRow {
	return gridRow{
		ID:        event.ID,
		Date:      formatDateCell(event.DateTime),
		Timestamp: event.DateTime.UTC().Format(time.RFC3339),
		User:      h.formatUserCell(r, event),
		SourceIP:  html.EscapeString(event.SourceIP),
		EventType: html.EscapeString(event.EventType),
		Object:    h.formatObjectCell(r, event, settings),
		Details:   formatDetailsCell(event.Details),
	}
}

// formatDateCell renders a relative time with the absolute UTC timestamp
// as the tooltip. Client-side code re-renders the RFC3339 timestamp in the
// viewer's local zone.
func formatDateCell(t time.Time) string {
	abs := t.UTC().Format("2006-01-02 15:04:05") + " UTC"
	return fmt.Sprintf(`<span title="%s">%s</span>`, abs, relativeTime(time.Since(t)))
}

func relativeTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		n := int(d / time.Minute)
		return fmt.Sprintf("%d %s ago", n, pluralize(n, "minute"))
	case d < 24*time.Hour:
		n := int(d / time.Hour)
		return fmt.Sprintf("%d %s ago", n, pluralize(n, "hour"))
	default:
		n := int(d / (24 * time.Hour))
		return fmt.Sprintf("%d %s ago", n, pluralize(n, "day"))
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

// formatUserCell resolves the actor's display name from the user snapshot
// registry; the role label is the one captured at event time, never
// re-derived.
func (h *Handler) formatUserCell(r *http.Request, event models.Event) string {
	if event.UserID == nil {
		return "<em>System</em>"
	}
	name := fmt.Sprintf("User %d", *event.UserID)
	if snap, err := h.Objects.GetObject(r.Context(), models.ObjectUser, strconv.FormatInt(*event.UserID, 10)); err == nil && snap.Label != "" {
		name = snap.Label
	}
	cell := "<strong>" + html.EscapeString(name) + "</strong>"
	if event.UserRole != "" {
		cell += "<br><small>" + html.EscapeString(event.UserRole) + "</small>"
	}
	return cell
}

// formatObjectCell builds the clickable reference for the affected entity.
// Resolution runs against the object's current snapshot, so the link
// reflects its status now, not at event time. Any lookup miss degrades to
// the label cached on the event row.
func (h *Handler) formatObjectCell(r *http.Request, event models.Event, settings models.Settings) string {
	label := event.ObjectLabel
	if label == "" {
		label = string(event.ObjectType) + " " + event.ObjectID
	}
	escaped := html.EscapeString(label)

	snap, err := h.Objects.GetObject(r.Context(), event.ObjectType, event.ObjectID)
	if err != nil {
		return escaped
	}
	if snap.Label != "" {
		escaped = html.EscapeString(snap.Label)
	}

	var url string
	switch event.ObjectType {
	case models.ObjectPost:
		switch snap.Status {
		case "publish", "published":
			url = snap.Permalink
		case "trash":
			if settings.SiteURL != "" {
				url = strings.TrimRight(settings.SiteURL, "/") + "/wp-admin/edit.php?post_status=trash"
			}
		default:
			url = snap.EditURL
		}
	case models.ObjectUser:
		url = snap.EditURL
	case models.ObjectTheme, models.ObjectPlugin:
		// Extensions have no landing page; plain label.
		return escaped
	}

	if url == "" {
		return escaped
	}
	return fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`, html.EscapeString(url), escaped)
}

// formatDetailsCell renders the ordered details as a small table. Values
// that are URLs become links.
func formatDetailsCell(details models.Details) string {
	if len(details) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<table class="event-details">`)
	for _, d := range details {
		value := html.EscapeString(d.Value)
		if strings.HasPrefix(d.Value, "http://") || strings.HasPrefix(d.Value, "https://") {
			value = fmt.Sprintf(`<a href="%s" target="_blank">view</a>`, html.EscapeString(d.Value))
		}
		b.WriteString("<tr><th>" + html.EscapeString(d.Label) + "</th><td>" + value + "</td></tr>")
	}
	b.WriteString("</table>")
	return b.String()
}

// ResetEventsHandler irreversibly clears the whole log. The dashboard asks
// for confirmation; this endpoint does not.
func (h *Handler) ResetEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.Events.TruncateEvents(r.Context()); err != nil {
		log.Printf("Failed to reset events: %v", err)
		http.Error(w, "Failed to reset events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// SummaryHandler feeds the dashboard widget: totals for the headline
// numbers next to the grid.
func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	page, err := h.Events.QueryEvents(r.Context(), store.EventQuery{Limit: 1})
	if err != nil {
		http.Error(w, "Query failed", http.StatusInternalServerError)
		return
	}

	since := time.Now().UTC().Truncate(24 * time.Hour)
	today, err := h.Events.CountEventsSince(r.Context(), since)
	if err != nil {
		today = 0
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"total": page.TotalCount,
		"today": today,
	})
}

package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audit-trail-go/internal/models"
	"audit-trail-go/internal/recorder"
	"audit-trail-go/internal/store"
)

// fakeStore backs the handler tests in memory. It records the last grid
// query so requests can be asserted against what reaches the store.
type fakeStore struct {
	events    []models.Event
	snapshots map[string]models.ObjectSnapshot
	settings  models.Settings
	lastQuery store.EventQuery
	truncated bool
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshots: map[string]models.ObjectSnapshot{},
		settings:  models.DefaultSettings(),
		nextID:    1,
	}
}

func (f *fakeStore) AppendEvent(_ context.Context, event *models.Event) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}
	event.ID = f.nextID
	f.nextID++
	f.events = append(f.events, *event)
	return event.ID, nil
}

func (f *fakeStore) GetEvent(_ context.Context, id int64) (models.Event, error) {
	for _, e := range f.events {
		if e.ID == id {
			return e, nil
		}
	}
	return models.Event{}, store.ErrEventNotFound
}

func (f *fakeStore) QueryEvents(_ context.Context, q store.EventQuery) (store.EventPage, error) {
	f.lastQuery = q.Normalize()
	return store.EventPage{
		Events:        f.events,
		FilteredCount: len(f.events),
		TotalCount:    len(f.events),
	}, nil
}

func (f *fakeStore) LatestSessionEvent(_ context.Context, userID int64) (models.Event, error) {
	for i := len(f.events) - 1; i >= 0; i-- {
		e := f.events[i]
		if e.EventType == store.SessionEventType && e.UserID != nil && *e.UserID == userID {
			return e, nil
		}
	}
	return models.Event{}, store.ErrEventNotFound
}

func (f *fakeStore) UpdateEventDetails(_ context.Context, id int64, details models.Details) error {
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].Details = details
			return nil
		}
	}
	return store.ErrEventNotFound
}

func (f *fakeStore) TruncateEvents(context.Context) error {
	f.truncated = true
	f.events = nil
	return nil
}

func (f *fakeStore) DeleteEventsBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeStore) CountEventsSince(context.Context, time.Time) (int, error) {
	return len(f.events), nil
}

func (f *fakeStore) UpsertObject(_ context.Context, snap models.ObjectSnapshot) error {
	f.snapshots[string(snap.Type)+"/"+snap.ID] = snap
	return nil
}

func (f *fakeStore) GetObject(_ context.Context, objectType models.ObjectType, objectID string) (models.ObjectSnapshot, error) {
	snap, ok := f.snapshots[string(objectType)+"/"+objectID]
	if !ok {
		return models.ObjectSnapshot{}, store.ErrEventNotFound
	}
	return snap, nil
}

func (f *fakeStore) GetSettings(context.Context) (models.Settings, error) { return f.settings, nil }

func (f *fakeStore) SaveSettings(_ context.Context, s models.Settings) error {
	f.settings = s
	return nil
}

func newTestHandler(fs *fakeStore) *Handler {
	rec := recorder.New(fs, fs, nil)
	// No server behind this address; publish failures only log.
	feed := store.NewRedisStore(&redis.Options{Addr: "127.0.0.1:1"})
	return &Handler{
		Events:   fs,
		Objects:  fs,
		Settings: fs,
		Feed:     feed,
		Recorder: rec,
	}
}

func seedEvent(fs *fakeStore, eventType string) models.Event {
	actor := int64(1)
	event := models.Event{
		DateTime:    time.Now().UTC(),
		UserID:      &actor,
		UserRole:    "editor",
		SourceIP:    "203.0.113.9",
		EventType:   eventType,
		ObjectType:  models.ObjectPost,
		ObjectID:    "10",
		ObjectLabel: "Hello World",
		Details:     models.Details{{Label: "Post ID", Value: "10"}},
	}
	fs.AppendEvent(context.Background(), &event)
	return event
}

func TestEventsGridEchoesDrawAndCounts(t *testing.T) {
	fs := newFakeStore()
	seedEvent(fs, "Post Created")
	h := newTestHandler(fs)

	body := `{"draw":7,"start":20,"length":25,"order":[{"column":1,"dir":"asc"}],"search":{"value":"hello"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/events", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.EventsGridHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Draw            int               `json:"draw"`
		RecordsTotal    int               `json:"recordsTotal"`
		RecordsFiltered int               `json:"recordsFiltered"`
		Data            []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 7, resp.Draw)
	assert.Equal(t, 1, resp.RecordsTotal)
	assert.Equal(t, 1, resp.RecordsFiltered)
	assert.Len(t, resp.Data, 1)

	assert.Equal(t, "date_time", fs.lastQuery.SortColumn)
	assert.Equal(t, "asc", fs.lastQuery.SortDir)
	assert.Equal(t, 25, fs.lastQuery.Limit)
	assert.Equal(t, 20, fs.lastQuery.Offset)
	assert.Equal(t, "hello", fs.lastQuery.Search)
}

func TestEventsGridUnsortableColumnFallsBack(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs)

	// Column 6 is the details column, which is not sortable.
	body := `{"draw":1,"length":10,"order":[{"column":6,"dir":"asc"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/events", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.EventsGridHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "date_time", fs.lastQuery.SortColumn)
}

func TestEventsGridAcceptsGETParams(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs)

	req := httptest.NewRequest(http.MethodGet,
		"/api/admin/events?draw=3&start=10&length=50&order%5B0%5D%5Bcolumn%5D=4&order%5B0%5D%5Bdir%5D=asc&search%5Bvalue%5D=login", nil)
	w := httptest.NewRecorder()
	h.EventsGridHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "event_type", fs.lastQuery.SortColumn)
	assert.Equal(t, "asc", fs.lastQuery.SortDir)
	assert.Equal(t, 50, fs.lastQuery.Limit)
	assert.Equal(t, "login", fs.lastQuery.Search)
}

func TestObjectCellResolvesCurrentState(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs)
	event := seedEvent(fs, "Post Created")
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	// No snapshot yet: plain escaped label.
	cell := h.formatObjectCell(req, event, fs.settings)
	assert.Equal(t, "Hello World", cell)

	// Published post links to its permalink.
	fs.UpsertObject(context.Background(), models.ObjectSnapshot{
		Type: models.ObjectPost, ID: "10", Label: "Hello World",
		Status: "publish", Permalink: "https://example.com/hello",
	})
	cell = h.formatObjectCell(req, event, fs.settings)
	assert.Contains(t, cell, `href="https://example.com/hello"`)

	// Trashed post links to the trash listing, built off the site URL.
	fs.settings.SiteURL = "https://example.com/"
	fs.UpsertObject(context.Background(), models.ObjectSnapshot{
		Type: models.ObjectPost, ID: "10", Label: "Hello World", Status: "trash",
	})
	cell = h.formatObjectCell(req, event, fs.settings)
	assert.Contains(t, cell, `href="https://example.com/wp-admin/edit.php?post_status=trash"`)

	// Draft posts link to the edit screen.
	fs.UpsertObject(context.Background(), models.ObjectSnapshot{
		Type: models.ObjectPost, ID: "10", Label: "Hello World",
		Status: "draft", EditURL: "https://example.com/wp-admin/post.php?post=10",
	})
	cell = h.formatObjectCell(req, event, fs.settings)
	assert.Contains(t, cell, "post.php?post=10")
}

func TestObjectCellExtensionsStayPlain(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	fs.UpsertObject(context.Background(), models.ObjectSnapshot{
		Type: models.ObjectPlugin, ID: "seo-tool", Label: "SEO Tool",
	})
	event := models.Event{ObjectType: models.ObjectPlugin, ObjectID: "seo-tool", ObjectLabel: "SEO Tool"}
	cell := h.formatObjectCell(req, event, fs.settings)
	assert.Equal(t, "SEO Tool", cell)
}

func TestUserCellSystemEvents(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	cell := h.formatUserCell(req, models.Event{})
	assert.Equal(t, "<em>System</em>", cell)
}

func TestFormatDetailsCellLinksURLs(t *testing.T) {
	details := models.Details{
		{Label: "Post ID", Value: "10"},
		{Label: "Revision", Value: "https://example.com/revision/99"},
	}
	cell := formatDetailsCell(details)
	assert.Contains(t, cell, "<th>Post ID</th><td>10</td>")
	assert.Contains(t, cell, `href="https://example.com/revision/99"`)
	assert.Contains(t, cell, ">view</a>")

	assert.Empty(t, formatDetailsCell(nil))
}

func TestResetEventsHandler(t *testing.T) {
	fs := newFakeStore()
	seedEvent(fs, "Post Created")
	h := newTestHandler(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/events/reset", nil)
	w := httptest.NewRecorder()
	h.ResetEventsHandler(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.False(t, fs.truncated)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/events/reset", nil)
	w = httptest.NewRecorder()
	h.ResetEventsHandler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, fs.truncated)
	assert.Empty(t, fs.events)
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func ingestBody(t *testing.T) string {
	t.Helper()
	actor := int64(1)
	delivery := recorder.Delivery{
		Actor: recorder.Actor{ID: &actor, DisplayName: "Alice", Role: "editor"},
		Callbacks: []recorder.Callback{{
			Kind: recorder.KindPostSave,
			Post: &recorder.PostContext{ID: 10, Title: "Hello", Status: "publish"},
		}},
	}
	data, err := json.Marshal(delivery)
	require.NoError(t, err)
	return string(data)
}

func TestIngestRecordsDelivery(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs)

	req := httptest.NewRequest(http.MethodPost, "/hooks/events", strings.NewReader(ingestBody(t)))
	req.RemoteAddr = "198.51.100.4:51234"
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status   string `json:"status"`
		Recorded int    `json:"recorded"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Recorded)

	require.Len(t, fs.events, 1)
	assert.Equal(t, "Post Created", fs.events[0].EventType)
	assert.Equal(t, "198.51.100.4", fs.events[0].SourceIP)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	t.Setenv("AUDIT_WEBHOOK_SECRET", "s3cret")

	fs := newFakeStore()
	h := newTestHandler(fs)
	body := ingestBody(t)

	req := httptest.NewRequest(http.MethodPost, "/hooks/events", strings.NewReader(body))
	req.Header.Set("X-Audit-Signature", "deadbeef")
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fs.events)

	req = httptest.NewRequest(http.MethodPost, "/hooks/events", strings.NewReader(body))
	req.Header.Set("X-Audit-Signature", signBody("s3cret", body))
	w = httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, fs.events, 1)
}

func TestIngestAcceptsAPIAccessKey(t *testing.T) {
	fs := newFakeStore()
	fs.settings.APIAccessKey = "key-123"
	h := newTestHandler(fs)

	req := httptest.NewRequest(http.MethodPost, "/hooks/events", strings.NewReader(ingestBody(t)))
	req.Header.Set("X-Audit-Key", "wrong")
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A configured key fails closed: no credential at all is refused.
	req = httptest.NewRequest(http.MethodPost, "/hooks/events", strings.NewReader(ingestBody(t)))
	w = httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fs.events)

	req = httptest.NewRequest(http.MethodPost, "/hooks/events", strings.NewReader(ingestBody(t)))
	req.Header.Set("X-Audit-Key", "key-123")
	w = httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, fs.events, 1)
}

func TestIngestSignatureSatisfiesConfiguredKey(t *testing.T) {
	t.Setenv("AUDIT_WEBHOOK_SECRET", "s3cret")

	fs := newFakeStore()
	fs.settings.APIAccessKey = "key-123"
	h := newTestHandler(fs)
	body := ingestBody(t)

	// With both mechanisms configured, a valid HMAC signature is enough.
	req := httptest.NewRequest(http.MethodPost, "/hooks/events", strings.NewReader(body))
	req.Header.Set("X-Audit-Signature", signBody("s3cret", body))
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, fs.events, 1)
}

func TestIngestSkipsUntrackedRole(t *testing.T) {
	fs := newFakeStore()
	fs.settings.TrackedRoles = []string{"administrator"}
	h := newTestHandler(fs)

	req := httptest.NewRequest(http.MethodPost, "/hooks/events", strings.NewReader(ingestBody(t)))
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "skipped", resp.Status)
	assert.Empty(t, fs.events)
}

func TestIngestRejectsInvalidObject(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs)

	actor := int64(1)
	delivery := recorder.Delivery{
		Actor: recorder.Actor{ID: &actor, Role: "administrator"},
		Callbacks: []recorder.Callback{{
			Kind:      recorder.KindPlugin,
			Extension: &recorder.ExtensionContext{Action: "Activated"},
		}},
	}
	data, _ := json.Marshal(delivery)

	req := httptest.NewRequest(http.MethodPost, "/hooks/events", bytes.NewReader(data))
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fs.events)
}

func TestUpdateSettingsValidation(t *testing.T) {
	fs := newFakeStore()
	h := newTestHandler(fs)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/settings", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.UpdateSettingsHandler(w, req)
		return w
	}

	w := post(`{"access_mode":"everyone"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(`{"access_mode":"user_roles","retention":{"keep_forever":false,"quantity":0,"unit":"days"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(`{"access_mode":"user_roles","retention":{"keep_forever":false,"quantity":6,"unit":"fortnights"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(`{"access_mode":"only_me","installer_user_id":3,"retention":{"keep_forever":false,"quantity":6,"unit":"months"},"viewer_roles":["administrator"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AccessModeOnlyMe, fs.settings.AccessMode)
	assert.Equal(t, 6, fs.settings.Retention.Quantity)
}

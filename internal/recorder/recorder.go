package recorder

import (
	"context"
	"errors"
	"log"
	"time"

	"audit-trail-go/internal/models"
)

// EventSink is the slice of the event store the recorder writes through.
type EventSink interface {
	AppendEvent(ctx context.Context, event *models.Event) (int64, error)
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	LatestSessionEvent(ctx context.Context, userID int64) (models.Event, error)
	UpdateEventDetails(ctx context.Context, id int64, details models.Details) error
}

// ObjectSink receives current-state snapshots of the entities events are
// about.
type ObjectSink interface {
	UpsertObject(ctx context.Context, snap models.ObjectSnapshot) error
}

// SessionIndex caches the id of each user's open session event so
// continuation does not need a SQL lookup on every ping. Logout clears
// the pointer.
type SessionIndex interface {
	LastSession(ctx context.Context, userID int64) (int64, error)
	SetLastSession(ctx context.Context, userID, eventID int64) error
	ClearLastSession(ctx context.Context, userID int64) error
}

// Actor is the account behind a delivery. A nil ID means a system or
// anonymous event.
type Actor struct {
	ID          *int64 `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Delivery is one webhook POST from the CMS: one logical user action that
// may have fired several underlying callbacks.
type Delivery struct {
	Actor     Actor      `json:"actor"`
	SourceIP  string     `json:"source_ip,omitempty"`
	Callbacks []Callback `json:"callbacks"`
}

// Callback kinds.
const (
	KindPostSave     = "post_save"
	KindPostTrash    = "post_trash"
	KindPostUntrash  = "post_untrash"
	KindPostDelete   = "post_delete"
	KindUserLogin    = "user_login"
	KindUserLogout   = "user_logout"
	KindUserRegister = "user_register"
	KindUserDelete   = "user_delete"
	KindSessionPing  = "session_ping"
	KindTheme        = "theme"
	KindPlugin       = "plugin"
)

// Callback is one raw lifecycle callback inside a delivery. Exactly one of
// the context fields matching Kind is set.
type Callback struct {
	Kind      string            `json:"kind"`
	Post      *PostContext      `json:"post,omitempty"`
	User      *UserContext      `json:"user,omitempty"`
	Extension *ExtensionContext `json:"extension,omitempty"`
}

// entityClass keys the per-delivery dedup guard: at most one event record
// per class per delivery, however many callbacks fired.
func (c Callback) entityClass() string {
	switch c.Kind {
	case KindPostSave, KindPostTrash, KindPostUntrash, KindPostDelete:
		return "post"
	case KindUserLogin, KindUserLogout, KindUserRegister, KindUserDelete:
		return "user"
	case KindSessionPing:
		return "session"
	case KindTheme:
		return "theme"
	case KindPlugin:
		return "plugin"
	}
	return ""
}

// Recorder turns deliveries into normalized event records.
type Recorder struct {
	events   EventSink
	objects  ObjectSink
	sessions SessionIndex
	now      func() time.Time
}

// New builds a Recorder. sessions may be nil; continuation then always
// falls back to the store lookup.
func New(events EventSink, objects ObjectSink, sessions SessionIndex) *Recorder {
	return &Recorder{
		events:   events,
		objects:  objects,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process handles every callback in the delivery and returns the event
// records that were appended or extended. Validation errors surface to the
// caller; snapshot upsert failures only log, they must never block the
// audit write.
func (r *Recorder) Process(ctx context.Context, d Delivery) ([]models.Event, error) {
	logged := make(map[string]bool)
	var recorded []models.Event
	var errs []error

	for _, cb := range d.Callbacks {
		class := cb.entityClass()
		if class == "" {
			log.Printf("recorder: unknown callback kind %q", cb.Kind)
			continue
		}
		if logged[class] {
			continue
		}

		event, err := r.handle(ctx, d, cb)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if event == nil {
			// Filtered out (autosave, revision, placeholder draft).
			continue
		}

		logged[class] = true
		recorded = append(recorded, *event)
	}

	return recorded, errors.Join(errs...)
}

func (r *Recorder) handle(ctx context.Context, d Delivery, cb Callback) (*models.Event, error) {
	switch cb.Kind {
	case KindPostSave, KindPostTrash, KindPostUntrash, KindPostDelete:
		return r.handlePost(ctx, d, cb)
	case KindUserLogin, KindUserLogout, KindUserRegister, KindUserDelete:
		return r.handleUser(ctx, d, cb)
	case KindSessionPing:
		return r.handleSessionPing(ctx, d)
	case KindTheme, KindPlugin:
		return r.handleExtension(ctx, d, cb)
	}
	return nil, nil
}

// newEvent stamps the common fields every handler shares.
func (r *Recorder) newEvent(d Delivery, eventType string, objectType models.ObjectType, objectID, objectLabel string) *models.Event {
	return &models.Event{
		DateTime:    r.now(),
		UserID:      d.Actor.ID,
		UserRole:    d.Actor.Role,
		SourceIP:    d.SourceIP,
		EventType:   eventType,
		ObjectType:  objectType,
		ObjectID:    objectID,
		ObjectLabel: objectLabel,
	}
}

func (r *Recorder) upsertSnapshot(ctx context.Context, snap models.ObjectSnapshot) {
	if r.objects == nil {
		return
	}
	if err := r.objects.UpsertObject(ctx, snap); err != nil {
		log.Printf("recorder: snapshot upsert failed for %s/%s: %v", snap.Type, snap.ID, err)
	}
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"audit-trail-go/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// How long a session continuation pointer stays cached. Longer than the
	// inactivity threshold so the SQL fallback is rarely needed.
	sessionPointerTTL = time.Hour

	eventChannel = "audit_events"
)

// EventStore persists and queries audit event records (PostgreSQL).
type EventStore interface {
	AppendEvent(ctx context.Context, event *models.Event) (int64, error)
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	QueryEvents(ctx context.Context, q EventQuery) (EventPage, error)
	LatestSessionEvent(ctx context.Context, userID int64) (models.Event, error)
	UpdateEventDetails(ctx context.Context, id int64, details models.Details) error
	TruncateEvents(ctx context.Context) error
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountEventsSince(ctx context.Context, since time.Time) (int, error)
}

// ObjectStore keeps current-state snapshots of CMS entities for reference
// link resolution.
type ObjectStore interface {
	UpsertObject(ctx context.Context, snap models.ObjectSnapshot) error
	GetObject(ctx context.Context, objectType models.ObjectType, objectID string) (models.ObjectSnapshot, error)
}

// AdminStore handles viewer accounts and push subscriptions (PostgreSQL).
type AdminStore interface {
	CreateUser(ctx context.Context, username, displayName, password, role string) (models.User, error)
	GetUser(ctx context.Context, id int) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id int, username, displayName, role string) error
	DeleteUser(ctx context.Context, id int) error
	UpdateUserPassword(ctx context.Context, userID int, newPasswordHash string) error
	UpdateUser2FA(ctx context.Context, userID int, totpSecret string, enabled bool) error
	Disable2FA(ctx context.Context, userID int) error
	SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error
	GetPushSubscriptions(ctx context.Context) ([]models.PushSubscription, error)
}

// SettingsStore loads and saves the recognized options.
type SettingsStore interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error
}

// RedisStore carries the live event feed and session continuation pointers.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	rdb := redis.NewClient(opts)
	return &RedisStore{client: rdb}
}

// PublishEvent pushes an appended event onto the SSE feed channel.
func (s *RedisStore) PublishEvent(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, eventChannel, data).Err()
}

// Subscribe returns the pub/sub feed of appended events.
func (s *RedisStore) Subscribe(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, eventChannel)
}

// SetLastSession remembers the id of the user's open session event.
func (s *RedisStore) SetLastSession(ctx context.Context, userID, eventID int64) error {
	key := fmt.Sprintf("session:last:%d", userID)
	return s.client.Set(ctx, key, eventID, sessionPointerTTL).Err()
}

// LastSession returns the cached open session event id, or 0 when none is
// cached.
func (s *RedisStore) LastSession(ctx context.Context, userID int64) (int64, error) {
	key := fmt.Sprintf("session:last:%d", userID)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// ClearLastSession drops the continuation pointer, used on logout.
func (s *RedisStore) ClearLastSession(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, fmt.Sprintf("session:last:%d", userID)).Err()
}

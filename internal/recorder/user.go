package recorder

import (
	"context"
	"strconv"
	"time"

	"audit-trail-go/internal/models"
)

// UserContext is the account state the CMS sends with user callbacks. The
// role here is the affected account's role; the actor's role lives on the
// delivery.
type UserContext struct {
	ID           int64     `json:"id"`
	Login        string    `json:"login"`
	DisplayName  string    `json:"display_name,omitempty"`
	Role         string    `json:"role,omitempty"`
	RegisteredAt time.Time `json:"registered_at,omitempty"`
	ProfileURL   string    `json:"profile_url,omitempty"`
}

func (r *Recorder) handleUser(ctx context.Context, d Delivery, cb Callback) (*models.Event, error) {
	u := cb.User
	if u == nil {
		return nil, nil
	}

	var action string
	switch cb.Kind {
	case KindUserLogin:
		action = "Login"
	case KindUserLogout:
		action = "Logout"
	case KindUserRegister:
		action = "Registered"
	case KindUserDelete:
		action = "Deleted"
	}

	userID := strconv.FormatInt(u.ID, 10)
	label := u.DisplayName
	if label == "" {
		label = u.Login
	}
	event := r.newEvent(d, "User "+action, models.ObjectUser, userID, label)

	event.Details.Set("Username", u.Login)
	if u.DisplayName != "" {
		event.Details.Set("Display Name", u.DisplayName)
	}
	if u.Role != "" {
		event.Details.Set("Role", u.Role)
	}
	if cb.Kind == KindUserRegister && !u.RegisteredAt.IsZero() {
		event.Details.Set("Registered", u.RegisteredAt.UTC().Format(timeLayout))
	}

	// Deleted accounts keep their last snapshot; the audit row must survive
	// the account it describes.
	if cb.Kind != KindUserDelete {
		r.upsertSnapshot(ctx, models.ObjectSnapshot{
			Type:    models.ObjectUser,
			ID:      userID,
			Label:   label,
			EditURL: u.ProfileURL,
		})
	}

	if _, err := r.events.AppendEvent(ctx, event); err != nil {
		return nil, err
	}

	if cb.Kind == KindUserLogout {
		r.forgetSession(ctx, u.ID)
	}
	return event, nil
}

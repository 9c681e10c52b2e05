package models

import "time"

// PushSubscription is one browser push endpoint a viewer registered for
// deletion alerts. P256dh and Auth are the browser's encryption keys,
// passed through to the push service verbatim.
type PushSubscription struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

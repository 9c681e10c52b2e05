package models

import "time"

// ObjectSnapshot caches the current state of a CMS entity, upserted on
// every ingest callback. Reference links in the grid resolve against this
// table, so they always reflect the object's state now, not at event time.
type ObjectSnapshot struct {
	Type      ObjectType `json:"object_type"`
	ID        string     `json:"object_id"`
	Label     string     `json:"label"`
	Status    string     `json:"status,omitempty"`
	Permalink string     `json:"permalink,omitempty"`
	EditURL   string     `json:"edit_url,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

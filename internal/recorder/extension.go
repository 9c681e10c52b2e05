package recorder

import (
	"context"

	"audit-trail-go/internal/models"
)

// ExtensionContext covers theme and plugin callbacks. Extensions are keyed
// by slug, not a numeric id.
type ExtensionContext struct {
	Slug    string `json:"slug"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Action  string `json:"action"` // e.g. Activated, Deactivated, Switched, Installed
}

func (r *Recorder) handleExtension(ctx context.Context, d Delivery, cb Callback) (*models.Event, error) {
	ext := cb.Extension
	if ext == nil || ext.Action == "" {
		return nil, nil
	}

	objectType := models.ObjectTheme
	entity := "Theme"
	if cb.Kind == KindPlugin {
		objectType = models.ObjectPlugin
		entity = "Plugin"
	}

	label := ext.Name
	if label == "" {
		label = ext.Slug
	}
	event := r.newEvent(d, entity+" "+ext.Action, objectType, ext.Slug, label)
	event.Details.Set("Slug", ext.Slug)
	if ext.Name != "" {
		event.Details.Set("Name", ext.Name)
	}
	if ext.Version != "" {
		event.Details.Set("Version", ext.Version)
	}

	r.upsertSnapshot(ctx, models.ObjectSnapshot{
		Type:  objectType,
		ID:    ext.Slug,
		Label: label,
	})

	if _, err := r.events.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

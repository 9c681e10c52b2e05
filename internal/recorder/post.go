package recorder

import (
	"context"
	"strconv"
	"time"

	"audit-trail-go/internal/models"
)

// timeLayout is how timestamps render inside details values.
const timeLayout = "2006-01-02 15:04:05"

// PostContext is the content item state the CMS sends with post callbacks.
type PostContext struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	PrevStatus string    `json:"prev_status,omitempty"`
	AuthorID   int64     `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
	Permalink  string    `json:"permalink,omitempty"`
	EditURL    string    `json:"edit_url,omitempty"`

	// Save-callback specifics.
	IsAutosave bool   `json:"is_autosave,omitempty"`
	IsRevision bool   `json:"is_revision,omitempty"`
	SavedHash  string `json:"saved_hash,omitempty"`
	DiffURL    string `json:"diff_url,omitempty"`

	// Prior revision summaries, oldest first, excluding the one just saved.
	Revisions []RevisionSummary `json:"revisions,omitempty"`
}

// RevisionSummary is one prior revision of a post.
type RevisionSummary struct {
	ID       int64  `json:"id"`
	Autosave bool   `json:"autosave,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// classifySave decides Created vs Updated: a save counts as Created when
// every prior revision is an autosave or identical to the content just
// saved. Zero substantive prior revisions is always Created.
func classifySave(p *PostContext) string {
	for _, rev := range p.Revisions {
		if rev.Autosave {
			continue
		}
		if p.SavedHash != "" && rev.Hash == p.SavedHash {
			continue
		}
		return "Updated"
	}
	return "Created"
}

func (r *Recorder) handlePost(ctx context.Context, d Delivery, cb Callback) (*models.Event, error) {
	p := cb.Post
	if p == nil {
		return nil, nil
	}

	// Revisions and autosaves never log; only the parent entity does.
	// Placeholder drafts the editor has not saved yet are skipped too.
	if p.IsRevision || p.IsAutosave || p.Status == "auto-draft" {
		return nil, nil
	}

	var action string
	switch cb.Kind {
	case KindPostSave:
		action = classifySave(p)
	case KindPostTrash:
		action = "Trashed"
	case KindPostUntrash:
		action = "Restored"
	case KindPostDelete:
		action = "Deleted"
	}

	postID := strconv.FormatInt(p.ID, 10)
	event := r.newEvent(d, "Post "+action, models.ObjectPost, postID, p.Title)

	event.Details.Set("Post ID", postID)
	event.Details.Set("Post Status", p.Status)
	if p.PrevStatus != "" && p.PrevStatus != p.Status {
		event.Details.Set("Previous Status", p.PrevStatus)
	}
	if p.AuthorName != "" {
		event.Details.Set("Author", p.AuthorName)
	}
	if !p.CreatedAt.IsZero() {
		event.Details.Set("Created", p.CreatedAt.UTC().Format(timeLayout))
	}
	if !p.ModifiedAt.IsZero() {
		event.Details.Set("Modified", p.ModifiedAt.UTC().Format(timeLayout))
	}
	if action == "Updated" && p.DiffURL != "" {
		event.Details.Set("Revision", p.DiffURL)
	}

	status := p.Status
	if cb.Kind == KindPostTrash {
		status = "trash"
	}
	r.upsertSnapshot(ctx, models.ObjectSnapshot{
		Type:      models.ObjectPost,
		ID:        postID,
		Label:     p.Title,
		Status:    status,
		Permalink: p.Permalink,
		EditURL:   p.EditURL,
	})

	if _, err := r.events.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

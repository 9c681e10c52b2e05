package recorder

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"audit-trail-go/internal/models"
	"audit-trail-go/internal/store"
)

// InactivityThreshold separates a continued session from a new one: a ping
// within this window of the recorded session end extends the existing row.
const InactivityThreshold = 5 * time.Minute

// handleSessionPing is the one handler that mutates a stored row. Reading
// the latest session event, deciding continue-vs-new and writing back is a
// check-then-act race under concurrent pings from the same actor; the
// consequence is a slightly-off duration, never corrupt data, so no row
// lock is taken.
func (r *Recorder) handleSessionPing(ctx context.Context, d Delivery) (*models.Event, error) {
	if d.Actor.ID == nil {
		return nil, nil
	}
	actorID := *d.Actor.ID
	now := r.now()

	if last, ok := r.openSession(ctx, actorID); ok {
		start, startOK := parseDetailTime(last.Details, "Session Start")
		end, endOK := parseDetailTime(last.Details, "Session End")
		if startOK && endOK && now.Sub(end) <= InactivityThreshold {
			last.Details.Set("Session End", now.Format(timeLayout))
			last.Details.Set("Session Duration", FormatSessionDuration(now.Sub(start)))
			if err := r.events.UpdateEventDetails(ctx, last.ID, last.Details); err != nil {
				return nil, err
			}
			r.rememberSession(ctx, actorID, last.ID)
			return &last, nil
		}
	}

	event := r.newEvent(d, store.SessionEventType, models.ObjectUser, strconv.FormatInt(actorID, 10), d.Actor.DisplayName)
	event.Details.Set("Session Start", now.Format(timeLayout))
	event.Details.Set("Session End", now.Format(timeLayout))
	event.Details.Set("Session Duration", FormatSessionDuration(0))

	if _, err := r.events.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	r.rememberSession(ctx, actorID, event.ID)
	return event, nil
}

// openSession finds the actor's most recent session event, preferring the
// cached pointer over the store lookup.
func (r *Recorder) openSession(ctx context.Context, actorID int64) (models.Event, bool) {
	if r.sessions != nil {
		if id, err := r.sessions.LastSession(ctx, actorID); err == nil && id != 0 {
			if event, err := r.events.GetEvent(ctx, id); err == nil {
				return event, true
			}
		}
	}
	event, err := r.events.LatestSessionEvent(ctx, actorID)
	if err != nil {
		return models.Event{}, false
	}
	return event, true
}

func (r *Recorder) rememberSession(ctx context.Context, actorID, eventID int64) {
	if r.sessions == nil {
		return
	}
	if err := r.sessions.SetLastSession(ctx, actorID, eventID); err != nil {
		log.Printf("recorder: session pointer cache failed for user %d: %v", actorID, err)
	}
}

// forgetSession drops the continuation pointer on logout so the next ping
// after a fresh login starts a new session row.
func (r *Recorder) forgetSession(ctx context.Context, actorID int64) {
	if r.sessions == nil {
		return
	}
	if err := r.sessions.ClearLastSession(ctx, actorID); err != nil {
		log.Printf("recorder: session pointer clear failed for user %d: %v", actorID, err)
	}
}

func parseDetailTime(d models.Details, label string) (time.Time, bool) {
	value, ok := d.Get(label)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatSessionDuration renders a session length as whole hours and whole
// minutes. Seconds round up to the next minute and zero-valued components
// are omitted, with "0 minutes" as the floor.
func FormatSessionDuration(d time.Duration) string {
	if d <= 0 {
		return "0 minutes"
	}

	minutes := int(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	hours := minutes / 60
	minutes = minutes % 60

	out := ""
	if hours > 0 {
		out = fmt.Sprintf("%d %s", hours, plural(hours, "hour"))
	}
	if minutes > 0 {
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d %s", minutes, plural(minutes, "minute"))
	}
	return out
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

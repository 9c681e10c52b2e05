package retention

import (
	"context"
	"log"
	"strconv"
	"time"

	"audit-trail-go/internal/metrics"
	"audit-trail-go/internal/models"
	"audit-trail-go/internal/store"
)

// PluginSlug identifies this service when it logs its own background work.
const PluginSlug = "audit-trail-go"

// Worker prunes events past the configured retention on a fixed interval.
type Worker struct {
	Events   store.EventStore
	Settings store.SettingsStore
	Interval time.Duration
}

// Run blocks until ctx is done, pruning once per interval. A failed sweep
// only logs; the next tick retries naturally.
func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				log.Printf("retention: sweep failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one retention pass. With keep-forever set it does nothing.
// When background-job tracking is enabled, a sweep that removed rows logs
// its own event.
func (w *Worker) Sweep(ctx context.Context) error {
	settings, err := w.Settings.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings.Retention.KeepForever || settings.Retention.Quantity <= 0 {
		return nil
	}

	cutoff := time.Now().UTC().Add(-settings.Retention.Duration())
	removed, err := w.Events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}

	metrics.EventsPruned.Add(float64(removed))
	log.Printf("retention: pruned %d events older than %s", removed, cutoff.Format(time.RFC3339))

	if settings.TrackBackgroundJobs {
		event := &models.Event{
			DateTime:    time.Now().UTC(),
			UserRole:    "system",
			EventType:   "Plugin Purge",
			ObjectType:  models.ObjectPlugin,
			ObjectID:    PluginSlug,
			ObjectLabel: "Audit Trail",
		}
		event.Details.Set("Events Removed", strconv.FormatInt(removed, 10))
		event.Details.Set("Cutoff", cutoff.Format("2006-01-02 15:04:05"))
		if _, err := w.Events.AppendEvent(ctx, event); err != nil {
			log.Printf("retention: failed to log purge event: %v", err)
		}
	}
	return nil
}

package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audit-trail-go/internal/models"
	"audit-trail-go/internal/store"
)

type fakeEvents struct {
	store.EventStore
	cutoff   time.Time
	removed  int64
	appended []*models.Event
}

func (f *fakeEvents) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.removed, nil
}

func (f *fakeEvents) AppendEvent(_ context.Context, event *models.Event) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}
	f.appended = append(f.appended, event)
	return int64(len(f.appended)), nil
}

type fakeSettings struct {
	settings models.Settings
}

func (f *fakeSettings) GetSettings(context.Context) (models.Settings, error) {
	return f.settings, nil
}

func (f *fakeSettings) SaveSettings(_ context.Context, s models.Settings) error {
	f.settings = s
	return nil
}

func TestSweepKeepForeverDoesNothing(t *testing.T) {
	events := &fakeEvents{removed: 100}
	w := &Worker{Events: events, Settings: &fakeSettings{settings: models.DefaultSettings()}}

	require.NoError(t, w.Sweep(context.Background()))
	assert.True(t, events.cutoff.IsZero(), "no delete should run under keep-forever")
}

func TestSweepPrunesPastRetention(t *testing.T) {
	events := &fakeEvents{removed: 42}
	settings := &fakeSettings{settings: models.Settings{
		Retention: models.Retention{Quantity: 2, Unit: models.RetentionWeeks},
	}}
	w := &Worker{Events: events, Settings: settings}

	require.NoError(t, w.Sweep(context.Background()))

	want := time.Now().UTC().Add(-14 * 24 * time.Hour)
	assert.WithinDuration(t, want, events.cutoff, time.Minute)
	assert.Empty(t, events.appended, "purge event only logs when background tracking is on")
}

func TestSweepLogsPurgeEventWhenTracking(t *testing.T) {
	events := &fakeEvents{removed: 7}
	settings := &fakeSettings{settings: models.Settings{
		Retention:           models.Retention{Quantity: 30, Unit: models.RetentionDays},
		TrackBackgroundJobs: true,
	}}
	w := &Worker{Events: events, Settings: settings}

	require.NoError(t, w.Sweep(context.Background()))
	require.Len(t, events.appended, 1)

	event := events.appended[0]
	assert.Equal(t, "Plugin Purge", event.EventType)
	assert.Equal(t, models.ObjectPlugin, event.ObjectType)
	assert.Equal(t, PluginSlug, event.ObjectID)
	removed, _ := event.Details.Get("Events Removed")
	assert.Equal(t, "7", removed)
}

func TestSweepNothingRemovedStaysQuiet(t *testing.T) {
	events := &fakeEvents{removed: 0}
	settings := &fakeSettings{settings: models.Settings{
		Retention:           models.Retention{Quantity: 1, Unit: models.RetentionDays},
		TrackBackgroundJobs: true,
	}}
	w := &Worker{Events: events, Settings: settings}

	require.NoError(t, w.Sweep(context.Background()))
	assert.Empty(t, events.appended)
}

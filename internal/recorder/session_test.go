package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex is an in-memory SessionIndex.
type fakeIndex struct {
	pointers map[int64]int64
}

func (f *fakeIndex) LastSession(_ context.Context, userID int64) (int64, error) {
	return f.pointers[userID], nil
}

func (f *fakeIndex) SetLastSession(_ context.Context, userID, eventID int64) error {
	f.pointers[userID] = eventID
	return nil
}

func (f *fakeIndex) ClearLastSession(_ context.Context, userID int64) error {
	delete(f.pointers, userID)
	return nil
}

func sessionRecorder(sink *fakeSink, start time.Time) (*Recorder, *time.Time) {
	now := start
	rec := New(sink, sink, &fakeIndex{pointers: map[int64]int64{}})
	rec.now = func() time.Time { return now }
	return rec, &now
}

func ping() Callback {
	return Callback{Kind: KindSessionPing}
}

func TestSessionPingOpensNewSession(t *testing.T) {
	sink := newFakeSink()
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	rec, _ := sessionRecorder(sink, start)

	recorded, err := rec.Process(context.Background(), actorDelivery(1, "editor", ping()))
	require.NoError(t, err)
	require.Len(t, recorded, 1)

	event := recorded[0]
	assert.Equal(t, "User Session", event.EventType)

	s, _ := event.Details.Get("Session Start")
	e, _ := event.Details.Get("Session End")
	dur, _ := event.Details.Get("Session Duration")
	assert.Equal(t, "2026-08-25 10:00:00", s)
	assert.Equal(t, s, e)
	assert.Equal(t, "0 minutes", dur)
}

func TestSessionPingWithinThresholdExtends(t *testing.T) {
	sink := newFakeSink()
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	rec, now := sessionRecorder(sink, start)

	_, err := rec.Process(context.Background(), actorDelivery(1, "editor", ping()))
	require.NoError(t, err)

	*now = start.Add(4 * time.Minute)
	recorded, err := rec.Process(context.Background(), actorDelivery(1, "editor", ping()))
	require.NoError(t, err)
	require.Len(t, recorded, 1)

	// Same row, extended in place.
	assert.Len(t, sink.events, 1)
	stored := sink.events[0]
	e, _ := stored.Details.Get("Session End")
	dur, _ := stored.Details.Get("Session Duration")
	assert.Equal(t, "2026-08-25 10:04:00", e)
	assert.Equal(t, "4 minutes", dur)
}

func TestSessionPingAfterThresholdStartsNewRow(t *testing.T) {
	sink := newFakeSink()
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	rec, now := sessionRecorder(sink, start)

	_, err := rec.Process(context.Background(), actorDelivery(1, "editor", ping()))
	require.NoError(t, err)

	*now = start.Add(InactivityThreshold + time.Second)
	_, err = rec.Process(context.Background(), actorDelivery(1, "editor", ping()))
	require.NoError(t, err)

	assert.Len(t, sink.events, 2, "a gap past the threshold closes the old session")
}

func TestSessionPingFallsBackToStoreLookup(t *testing.T) {
	sink := newFakeSink()
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	// No session index at all; continuation must still work via the store.
	rec := New(sink, sink, nil)
	now := start
	rec.now = func() time.Time { return now }

	_, err := rec.Process(context.Background(), actorDelivery(1, "editor", ping()))
	require.NoError(t, err)

	now = start.Add(2 * time.Minute)
	_, err = rec.Process(context.Background(), actorDelivery(1, "editor", ping()))
	require.NoError(t, err)

	assert.Len(t, sink.events, 1)
}

func TestUserLogoutClearsSessionPointer(t *testing.T) {
	sink := newFakeSink()
	index := &fakeIndex{pointers: map[int64]int64{}}
	rec := New(sink, sink, index)

	_, err := rec.Process(context.Background(), actorDelivery(1, "editor", ping()))
	require.NoError(t, err)
	require.Contains(t, index.pointers, int64(1))

	logout := actorDelivery(1, "editor", Callback{
		Kind: KindUserLogout,
		User: &UserContext{ID: 1, Login: "alice", DisplayName: "Alice"},
	})
	_, err = rec.Process(context.Background(), logout)
	require.NoError(t, err)

	assert.NotContains(t, index.pointers, int64(1))
}

func TestSessionPingWithoutActorSkips(t *testing.T) {
	sink := newFakeSink()
	rec := New(sink, sink, nil)

	recorded, err := rec.Process(context.Background(), Delivery{Callbacks: []Callback{ping()}})
	require.NoError(t, err)
	assert.Empty(t, recorded)
	assert.Empty(t, sink.events)
}

func TestFormatSessionDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 minutes"},
		{-time.Minute, "0 minutes"},
		{30 * time.Second, "1 minute"},
		{time.Minute, "1 minute"},
		{time.Minute + time.Second, "2 minutes"},
		{59 * time.Minute, "59 minutes"},
		{time.Hour, "1 hour"},
		{time.Hour + 30*time.Minute, "1 hour 30 minutes"},
		{2*time.Hour + time.Second, "2 hours 1 minute"},
		{26 * time.Hour, "26 hours"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatSessionDuration(tc.in), "input %s", tc.in)
	}
}

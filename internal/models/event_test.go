package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectType(t *testing.T) {
	for _, valid := range []string{"post", "user", "theme", "plugin"} {
		got, err := ParseObjectType(valid)
		require.NoError(t, err)
		assert.Equal(t, ObjectType(valid), got)
	}

	for _, invalid := range []string{"", "page", "Post", "comment"} {
		_, err := ParseObjectType(invalid)
		assert.ErrorIs(t, err, ErrInvalidObjectType, "input %q", invalid)
	}
}

func TestEventValidate(t *testing.T) {
	event := Event{
		DateTime:   time.Now(),
		EventType:  "Post Created",
		ObjectType: ObjectPost,
		ObjectID:   "42",
	}
	assert.NoError(t, event.Validate())

	bad := event
	bad.ObjectType = "comment"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidObjectType)

	bad = event
	bad.ObjectID = ""
	assert.ErrorIs(t, bad.Validate(), ErrMissingObjectID)
}

func TestDetailsKeepInsertionOrder(t *testing.T) {
	var d Details
	d.Set("Post ID", "42")
	d.Set("Post Status", "publish")
	d.Set("Author", "alice")

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"Post ID":"42","Post Status":"publish","Author":"alice"}`, string(data))

	var back Details
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)
}

func TestDetailsSetReplacesInPlace(t *testing.T) {
	var d Details
	d.Set("Session Start", "2026-01-02 10:00:00")
	d.Set("Session End", "2026-01-02 10:00:00")
	d.Set("Session Duration", "0 minutes")

	// Updating an existing label must not move it to the end.
	d.Set("Session End", "2026-01-02 10:30:00")

	assert.Equal(t, Details{
		{Label: "Session Start", Value: "2026-01-02 10:00:00"},
		{Label: "Session End", Value: "2026-01-02 10:30:00"},
		{Label: "Session Duration", Value: "0 minutes"},
	}, d)

	value, ok := d.Get("Session End")
	assert.True(t, ok)
	assert.Equal(t, "2026-01-02 10:30:00", value)

	_, ok = d.Get("missing")
	assert.False(t, ok)
}

func TestDetailsStringEmpty(t *testing.T) {
	assert.Equal(t, "{}", Details{}.String())
}

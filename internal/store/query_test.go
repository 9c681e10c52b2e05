package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDefaults(t *testing.T) {
	q := EventQuery{}.Normalize()
	assert.Equal(t, "date_time", q.SortColumn)
	assert.Equal(t, "desc", q.SortDir)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 0, q.Offset)
}

func TestNormalizeRejectsUnknownColumn(t *testing.T) {
	q := EventQuery{SortColumn: "details; DROP TABLE events"}.Normalize()
	assert.Equal(t, "date_time", q.SortColumn)

	q = EventQuery{SortColumn: "user", SortDir: "ASC"}.Normalize()
	assert.Equal(t, "user", q.SortColumn)
	assert.Equal(t, "desc", q.SortDir, "direction match is exact, not case-folded")

	q = EventQuery{SortColumn: "event_type", SortDir: "asc"}.Normalize()
	assert.Equal(t, "asc", q.SortDir)
}

func TestNormalizeClampsPaging(t *testing.T) {
	q := EventQuery{Limit: -5, Offset: -100}.Normalize()
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 0, q.Offset)

	q = EventQuery{Limit: 25, Offset: 50}.Normalize()
	assert.Equal(t, 25, q.Limit)
	assert.Equal(t, 50, q.Offset)
}

func TestWhereClause(t *testing.T) {
	where, args := EventQuery{}.whereClause()
	assert.Empty(t, where)
	assert.Nil(t, args)

	where, args = EventQuery{Search: "  admin  "}.whereClause()
	assert.Contains(t, where, "date_time::text ILIKE $1")
	assert.Contains(t, where, "user_role ILIKE $2")
	assert.Contains(t, where, "COALESCE(source_ip, '') ILIKE $3")
	assert.Contains(t, where, "event_type ILIKE $4")
	assert.Contains(t, where, "object_type ILIKE $5")
	assert.Contains(t, where, "details ILIKE $6")
	assert.Len(t, args, 6)
	for _, arg := range args {
		assert.Equal(t, "%admin%", arg, "search is trimmed before wrapping")
	}
}

func TestOrderClause(t *testing.T) {
	q := EventQuery{SortColumn: "date_time", SortDir: "desc"}.Normalize()
	assert.Equal(t, "ORDER BY date_time DESC, id DESC", q.orderClause())

	q = EventQuery{SortColumn: "id", SortDir: "asc"}.Normalize()
	assert.Equal(t, "ORDER BY id ASC", q.orderClause(), "id needs no tiebreak")

	q = EventQuery{SortColumn: "object", SortDir: "asc"}.Normalize()
	assert.Equal(t, "ORDER BY object_type ASC, object_id ASC, id ASC", q.orderClause())
}

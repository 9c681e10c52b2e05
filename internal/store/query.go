package store

import (
	"fmt"
	"strings"

	"audit-trail-go/internal/models"
)

const (
	defaultPageSize   = 10
	defaultSortColumn = "date_time"
)

// sortColumns whitelists grid sort keys and maps them to ORDER BY
// expressions. "user" sorts by account then role so anonymous rows group,
// "object" sorts by type then id so events about one entity sit together.
var sortColumns = map[string]string{
	"id":         "id",
	"date_time":  "date_time",
	"user":       "user_id",
	"source_ip":  "source_ip",
	"event_type": "event_type",
	"object":     "object_type, object_id",
}

// EventQuery is one page request from the admin grid.
type EventQuery struct {
	Search     string
	SortColumn string
	SortDir    string
	Limit      int
	Offset     int
}

// EventPage is the grid page plus the counts the widget needs.
type EventPage struct {
	Events        []models.Event
	FilteredCount int
	TotalCount    int
}

// Normalize applies the documented fallbacks: an unknown sort column
// silently defaults to date_time (the grid sends column indexes, so a bad
// index degrades rather than failing the request), any direction other
// than asc defaults to desc, limit below 1 becomes 10, negative offset
// becomes 0.
func (q EventQuery) Normalize() EventQuery {
	if _, ok := sortColumns[q.SortColumn]; !ok {
		q.SortColumn = defaultSortColumn
	}
	if q.SortDir != "asc" {
		q.SortDir = "desc"
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// whereClause builds the search filter: a case-insensitive substring match
// OR'd across the searchable columns. Empty search means no filter.
func (q EventQuery) whereClause() (string, []any) {
	search := strings.TrimSpace(q.Search)
	if search == "" {
		return "", nil
	}
	pattern := "%" + search + "%"
	cols := []string{
		"date_time::text",
		"user_role",
		"COALESCE(source_ip, '')",
		"event_type",
		"object_type",
		"details",
	}
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		conds[i] = fmt.Sprintf("%s ILIKE $%d", col, i+1)
		args[i] = pattern
	}
	return "WHERE " + strings.Join(conds, " OR "), args
}

// orderClause builds the ORDER BY from the whitelisted column. The query
// must be normalized first. A trailing id tiebreak keeps paging stable
// across rows sharing a timestamp.
func (q EventQuery) orderClause() string {
	expr := sortColumns[q.SortColumn]
	dir := strings.ToUpper(q.SortDir)
	parts := strings.Split(expr, ", ")
	for i, p := range parts {
		parts[i] = p + " " + dir
	}
	order := strings.Join(parts, ", ")
	if q.SortColumn != "id" {
		order += ", id " + dir
	}
	return "ORDER BY " + order
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"audit-trail-go/internal/models"
)

// ErrEventNotFound is returned when a looked-up event row does not exist.
var ErrEventNotFound = errors.New("event not found")

// SessionEventType is the one event type whose rows are mutated in place
// while a session continues.
const SessionEventType = "User Session"

// AppendEvent validates and inserts one event record, returning the
// assigned id. Validation failures reject the write before touching the
// store.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *models.Event) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}
	if event.DateTime.IsZero() {
		event.DateTime = time.Now().UTC()
	}

	var userID sql.NullInt64
	if event.UserID != nil {
		userID = sql.NullInt64{Int64: *event.UserID, Valid: true}
	}
	var sourceIP sql.NullString
	if event.SourceIP != "" {
		sourceIP = sql.NullString{String: event.SourceIP, Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO events (date_time, user_id, user_role, source_ip, event_type, object_type, object_id, object_label, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		event.DateTime, userID, event.UserRole, sourceIP, event.EventType,
		string(event.ObjectType), event.ObjectID, event.ObjectLabel, event.Details.String(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	event.ID = id
	return id, nil
}

const eventColumns = `id, date_time, user_id, user_role, source_ip, event_type, object_type, object_id, object_label, details`

func scanEvent(row interface{ Scan(...any) error }) (models.Event, error) {
	var (
		e           models.Event
		userID      sql.NullInt64
		sourceIP    sql.NullString
		objectType  string
		detailsJSON string
	)
	err := row.Scan(&e.ID, &e.DateTime, &userID, &e.UserRole, &sourceIP,
		&e.EventType, &objectType, &e.ObjectID, &e.ObjectLabel, &detailsJSON)
	if err != nil {
		return models.Event{}, err
	}
	if userID.Valid {
		e.UserID = &userID.Int64
	}
	if sourceIP.Valid {
		e.SourceIP = sourceIP.String
	}
	e.ObjectType = models.ObjectType(objectType)
	if err := json.Unmarshal([]byte(detailsJSON), &e.Details); err != nil {
		// A corrupt details column must not break the grid.
		e.Details = models.Details{{Label: "raw", Value: detailsJSON}}
	}
	return e, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return models.Event{}, ErrEventNotFound
	}
	return event, err
}

// QueryEvents serves one grid page: filtered rows plus the filtered and
// total counts.
func (s *PostgresStore) QueryEvents(ctx context.Context, q EventQuery) (EventPage, error) {
	q = q.Normalize()

	var page EventPage
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&page.TotalCount); err != nil {
		return EventPage{}, err
	}

	where, args := q.whereClause()
	if where == "" {
		page.FilteredCount = page.TotalCount
	} else {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events `+where, args...).Scan(&page.FilteredCount); err != nil {
			return EventPage{}, err
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM events %s %s LIMIT $%d OFFSET $%d`,
		eventColumns, where, q.orderClause(), len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return EventPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			continue
		}
		page.Events = append(page.Events, event)
	}

	return page, rows.Err()
}

// LatestSessionEvent returns the most recent session event for the user,
// or ErrEventNotFound when they have none.
func (s *PostgresStore) LatestSessionEvent(ctx context.Context, userID int64) (models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE event_type = $1 AND user_id = $2
		 ORDER BY date_time DESC, id DESC
		 LIMIT 1`,
		SessionEventType, userID)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return models.Event{}, ErrEventNotFound
	}
	return event, err
}

// UpdateEventDetails rewrites the details column of one row. Only session
// continuation uses this; everything else is append-only.
func (s *PostgresStore) UpdateEventDetails(ctx context.Context, id int64, details models.Details) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE events SET details = $1 WHERE id = $2`,
		details.String(), id,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEventNotFound
	}
	return nil
}

// TruncateEvents irreversibly clears the log. Confirmation is the
// caller's concern.
func (s *PostgresStore) TruncateEvents(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE events`)
	return err
}

// CountEventsSince reports how many events were logged at or after since.
func (s *PostgresStore) CountEventsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE date_time >= $1`, since).Scan(&count)
	return count, err
}

// DeleteEventsBefore prunes rows older than cutoff and reports how many
// were removed.
func (s *PostgresStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE date_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"audit-trail-go/internal/models"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const settingsOption = "audit_settings"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	// Create tables
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	// Apply migrations for existing tables
	migrations := []string{
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS totp_secret VARCHAR(255);`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS totp_enabled BOOLEAN DEFAULT FALSE;`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS last_password_change TIMESTAMP WITH TIME ZONE DEFAULT NOW();`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS display_name VARCHAR(255) DEFAULT '';`,
		`ALTER TABLE events ADD COLUMN IF NOT EXISTS object_label TEXT DEFAULT '';`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// User methods

func (s *PostgresStore) CreateUser(ctx context.Context, username, displayName, password, role string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, display_name, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, username, display_name, password_hash, role, created_at`,
		username, displayName, passwordHash, role,
	).Scan(&user.ID, &user.Username, &user.DisplayName, &user.PasswordHash, &user.Role, &user.CreatedAt)

	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *PostgresStore) getUserRow(ctx context.Context, where string, arg any) (models.User, error) {
	var user models.User
	var totpSecret sql.NullString
	var lastPasswordChange sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, display_name, password_hash, role, totp_secret, totp_enabled, last_password_change, created_at FROM users WHERE `+where,
		arg,
	).Scan(&user.ID, &user.Username, &user.DisplayName, &user.PasswordHash, &user.Role, &totpSecret, &user.TOTPEnabled, &lastPasswordChange, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return models.User{}, errors.New("user not found")
	}
	if err != nil {
		return models.User{}, err
	}

	if totpSecret.Valid {
		user.TOTPSecret = totpSecret.String
	}
	if lastPasswordChange.Valid {
		user.LastPasswordChange = lastPasswordChange.Time
	}

	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int) (models.User, error) {
	return s.getUserRow(ctx, "id = $1", id)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.getUserRow(ctx, "username = $1", username)
}

func (s *PostgresStore) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, display_name, password_hash, role, totp_secret, totp_enabled, last_password_change, created_at FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var totpSecret sql.NullString
		var lastPasswordChange sql.NullTime

		if err := rows.Scan(&user.ID, &user.Username, &user.DisplayName, &user.PasswordHash, &user.Role, &totpSecret, &user.TOTPEnabled, &lastPasswordChange, &user.CreatedAt); err != nil {
			continue
		}

		if totpSecret.Valid {
			user.TOTPSecret = totpSecret.String
		}
		if lastPasswordChange.Valid {
			user.LastPasswordChange = lastPasswordChange.Time
		}

		users = append(users, user)
	}

	return users, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id int, username, displayName, role string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = $1, display_name = $2, role = $3 WHERE id = $4`,
		username, displayName, role, id,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("user not found")
	}

	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID int, newPasswordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, last_password_change = NOW() WHERE id = $2`,
		newPasswordHash, userID,
	)
	return err
}

// 2FA methods

func (s *PostgresStore) UpdateUser2FA(ctx context.Context, userID int, totpSecret string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = $1, totp_enabled = $2 WHERE id = $3`,
		totpSecret, enabled, userID,
	)
	return err
}

func (s *PostgresStore) Disable2FA(ctx context.Context, userID int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = NULL, totp_enabled = FALSE WHERE id = $1`,
		userID,
	)
	return err
}

// Push subscription methods

func (s *PostgresStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (endpoint) DO UPDATE SET p256dh = $3, auth = $4`,
		userID, endpoint, p256dh, auth,
	)
	return err
}

func (s *PostgresStore) GetPushSubscriptions(ctx context.Context) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at FROM push_subscriptions`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			continue
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

// Object snapshot methods

func (s *PostgresStore) UpsertObject(ctx context.Context, snap models.ObjectSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (object_type, object_id, label, status, permalink, edit_url, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (object_type, object_id)
		 DO UPDATE SET label = $3, status = $4, permalink = $5, edit_url = $6, updated_at = NOW()`,
		string(snap.Type), snap.ID, snap.Label, snap.Status, snap.Permalink, snap.EditURL,
	)
	return err
}

func (s *PostgresStore) GetObject(ctx context.Context, objectType models.ObjectType, objectID string) (models.ObjectSnapshot, error) {
	var snap models.ObjectSnapshot
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT object_type, object_id, label, status, permalink, edit_url, updated_at
		 FROM objects WHERE object_type = $1 AND object_id = $2`,
		string(objectType), objectID,
	).Scan(&typ, &snap.ID, &snap.Label, &snap.Status, &snap.Permalink, &snap.EditURL, &snap.UpdatedAt)

	if err == sql.ErrNoRows {
		return models.ObjectSnapshot{}, errors.New("object not found")
	}
	if err != nil {
		return models.ObjectSnapshot{}, err
	}
	snap.Type = models.ObjectType(typ)
	return snap, nil
}

// Settings methods

func (s *PostgresStore) GetSettings(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM options WHERE name = $1`, settingsOption,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, err
	}

	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		return models.DefaultSettings(), err
	}
	return settings, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	value, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO options (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = $2`,
		settingsOption, string(value),
	)
	return err
}

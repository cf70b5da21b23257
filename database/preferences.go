package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ==================== PREFERENCES ====================

const (
	PrefUserID           = "user_id"
	PrefProfileImagePath = "profile_image_path"
)

// Preferences is the persistent key-value store that survives restarts
type Preferences struct {
	db *DB
}

func NewPreferences(db *DB) *Preferences {
	return &Preferences{db: db}
}

// Get returns the value for key and whether it was set
func (p *Preferences) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Put sets key to value
func (p *Preferences) Put(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

// Delete removes key; deleting a missing key is not an error
func (p *Preferences) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key)
	return err
}

// Package settings persists the doorbell's tunable parameters.
//
// Values are integers grouped by namespace. The controller uses exactly one
// key today, KeyVolume, read once at boot and rewritten by every volume
// command.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultNamespace is the namespace the controller keeps its keys in.
	DefaultNamespace = "settings"

	// KeyVolume is the persisted playback volume.
	KeyVolume = "volume"
)

// Store reads and writes integer settings.
type Store interface {
	// GetInt returns the stored value, or def when the key has never been written.
	GetInt(ctx context.Context, key string, def int) (int, error)

	// PutInt stores value under key, replacing any previous value.
	PutInt(ctx context.Context, key string, value int) error
}

// SQLiteStore is a Store backed by the settings table.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
	now       func() time.Time
}

// NewSQLiteStore returns a store scoped to namespace.
func NewSQLiteStore(db *sql.DB, namespace string) *SQLiteStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &SQLiteStore{
		db:        db,
		namespace: namespace,
		now:       time.Now,
	}
}

// Namespace returns the namespace this store reads and writes.
func (s *SQLiteStore) Namespace() string {
	return s.namespace
}

// GetInt implements Store.
func (s *SQLiteStore) GetInt(ctx context.Context, key string, def int) (int, error) {
	if key == "" {
		return def, ErrInvalidKey
	}

	var value int
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE namespace = ? AND key = ?",
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("%w: %s/%s: %w", ErrReadFailed, s.namespace, key, err)
	}
	return value, nil
}

// PutInt implements Store.
func (s *SQLiteStore) PutInt(ctx context.Context, key string, value int) error {
	if key == "" {
		return ErrInvalidKey
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		s.namespace, key, value, s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrWriteFailed, s.namespace, key, err)
	}
	return nil
}

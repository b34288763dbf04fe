// Package audit records remote commands received over MQTT so an operator
// can see who changed the volume or started a track, and when.
//
// Only remote commands are recorded. Motion triggers are never persisted.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so received_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded command.
type Entry struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Command    string    `json:"command"`
	Payload    string    `json:"payload"`
	Value      *int      `json:"value,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Filter controls which entries to return.
type Filter struct {
	Command string // optional: play, volume or stop
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains the paginated entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the interface for command audit operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores entries in the command_audit table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new command audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. The ID and ReceivedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "cmd-" + uuid.NewString()[:8]
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}

	var value any
	if entry.Value != nil {
		value = *entry.Value
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit (id, topic, command, payload, value, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Topic, entry.Command, entry.Payload, value,
		entry.ReceivedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command audit entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for audit queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	where := ""
	var args []any
	if filter.Command != "" {
		where = "WHERE command = ?"
		args = append(args, filter.Command)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_audit " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command audit entries: %w", err)
	}

	query := "SELECT id, topic, command, payload, value, received_at FROM command_audit " +
		where + " ORDER BY received_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var value sql.NullInt64
		var receivedAt string

		if err := rows.Scan(&e.ID, &e.Topic, &e.Command, &e.Payload, &value, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning command audit entry: %w", err)
		}
		if value.Valid {
			v := int(value.Int64)
			e.Value = &v
		}

		t, err := time.Parse(timeLayout, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command audit timestamp %q: %w", receivedAt, err)
		}
		e.ReceivedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes entries received before the cutoff and returns how many
// were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM command_audit WHERE received_at < ?",
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning command audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning command audit entries: %w", err)
	}
	return n, nil
}

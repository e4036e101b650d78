package history

import (
	"context"
	"fmt"
	"time"

	"github.com/oakdene/inky-agent/internal/infrastructure/database"
)

// schema is applied on open. The log is append-only; rows are pruned by
// Prune, never updated.
const schema = `
CREATE TABLE IF NOT EXISTS command_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    received_at TIMESTAMP NOT NULL,
    action      TEXT NOT NULL,
    image_id    TEXT,
    success     INTEGER NOT NULL,
    error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_command_log_received_at ON command_log(received_at);
`

// Entry is one processed command.
type Entry struct {
	ID         int64
	ReceivedAt time.Time
	Action     string
	ImageID    *string
	Success    bool
	Error      *string
}

// Log is the SQLite-backed command log.
//
// All methods are nil-receiver safe so callers can hold a nil *Log when
// history is disabled.
type Log struct {
	db *database.DB
}

// New opens the command log on an existing database handle and applies
// the schema.
//
// Parameters:
//   - db: Open SQLite handle
//
// Returns:
//   - *Log: Ready log
//   - error: If schema creation fails
func New(db *database.DB) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating command log schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Record appends one command outcome.
//
// Failures are returned for logging; a broken log must never fail the
// command itself.
func (l *Log) Record(ctx context.Context, entry Entry) error {
	if l == nil {
		return nil
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO command_log (received_at, action, image_id, success, error)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ReceivedAt.UTC(), entry.Action, entry.ImageID, entry.Success, entry.Error,
	)
	if err != nil {
		return fmt.Errorf("recording command: %w", err)
	}
	return nil
}

// Recent returns the most recently received entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if l == nil {
		return nil, nil
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, received_at, action, image_id, success, error
		 FROM command_log ORDER BY received_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ReceivedAt, &e.Action, &e.ImageID, &e.Success, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning command log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the retention window.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: If the delete fails
func (l *Log) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if l == nil {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM command_log WHERE received_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning command log: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return n, nil
}

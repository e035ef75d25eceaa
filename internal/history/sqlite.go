// Package history persists closed session windows so custom-plan limits
// survive restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_windows (
	start_unix      INTEGER PRIMARY KEY,
	end_unix        INTEGER NOT NULL,
	last_event_unix INTEGER NOT NULL,
	messages        INTEGER NOT NULL,
	tokens          INTEGER NOT NULL,
	cost            REAL    NOT NULL,
	event_count     INTEGER NOT NULL
);`

// Store is a SQLite-backed archive of closed windows.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func configure(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("history: set journal_mode WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("history: set busy_timeout: %w", err)
	}
	// Single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	return nil
}

// Save upserts a closed window. Active windows are ignored.
func (s *Store) Save(ctx context.Context, w types.SessionWindow) error {
	if w.IsActive {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_windows (start_unix, end_unix, last_event_unix, messages, tokens, cost, event_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(start_unix) DO UPDATE SET
			end_unix = excluded.end_unix,
			last_event_unix = excluded.last_event_unix,
			messages = excluded.messages,
			tokens = excluded.tokens,
			cost = excluded.cost,
			event_count = excluded.event_count`,
		w.Start.Unix(), w.End.Unix(), w.LastEventAt.Unix(),
		w.Totals.Messages, w.Totals.Tokens, w.Totals.Cost, w.EventCount,
	)
	if err != nil {
		return fmt.Errorf("history: save window %s: %w", w.Start.Format(time.RFC3339), err)
	}
	return nil
}

// Load returns closed windows starting at or after since, oldest first.
// A zero since loads everything.
func (s *Store) Load(ctx context.Context, since time.Time) ([]types.SessionWindow, error) {
	var from int64
	if !since.IsZero() {
		from = since.Unix()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT start_unix, end_unix, last_event_unix, messages, tokens, cost, event_count
		FROM session_windows
		WHERE start_unix >= ?
		ORDER BY start_unix ASC`, from)
	if err != nil {
		return nil, fmt.Errorf("history: query windows: %w", err)
	}
	defer rows.Close()

	var out []types.SessionWindow
	for rows.Next() {
		var start, end, last int64
		var w types.SessionWindow
		if err := rows.Scan(&start, &end, &last, &w.Totals.Messages, &w.Totals.Tokens, &w.Totals.Cost, &w.EventCount); err != nil {
			return nil, fmt.Errorf("history: scan window: %w", err)
		}
		w.Start = time.Unix(start, 0).UTC()
		w.End = time.Unix(end, 0).UTC()
		w.LastEventAt = time.Unix(last, 0).UTC()
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate windows: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

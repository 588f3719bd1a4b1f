// Package usagelog persists per-turn token and cost accounting in SQLite so
// spend can be inspected across sessions after the fact. The ledger is
// advisory: recording failures are logged by callers, never surfaced as turn
// failures.
package usagelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS turn_usage (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT NOT NULL,
    model         TEXT NOT NULL,
    input_tokens  INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    cost          REAL NOT NULL,
    duration_ms   INTEGER NOT NULL,
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turn_usage_session ON turn_usage(session_id);
`

// Store manages usage persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the usage database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure usage directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Entry is one recorded turn.
type Entry struct {
	SessionID    string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Duration     time.Duration
	CreatedAt    time.Time
}

// Record appends one turn to the ledger.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO turn_usage (
            session_id, model, input_tokens, output_tokens, cost, duration_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Model,
		entry.InputTokens,
		entry.OutputTokens,
		entry.Cost,
		entry.Duration.Milliseconds(),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record turn usage: %w", err)
	}
	return nil
}

// SessionTotals aggregates the ledger for one session id.
type SessionTotals struct {
	SessionID    string
	Model        string
	Turns        int64
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// Totals returns per-session aggregates, optionally filtered to one session
// id. Results are ordered by total cost, highest first.
func (s *Store) Totals(ctx context.Context, sessionID string) ([]SessionTotals, error) {
	query := `SELECT session_id, MAX(model), COUNT(1),
        SUM(input_tokens), SUM(output_tokens), SUM(cost)
        FROM turn_usage`
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " GROUP BY session_id ORDER BY SUM(cost) DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage totals: %w", err)
	}
	defer rows.Close()

	var totals []SessionTotals
	for rows.Next() {
		var t SessionTotals
		if err := rows.Scan(&t.SessionID, &t.Model, &t.Turns, &t.InputTokens, &t.OutputTokens, &t.Cost); err != nil {
			return nil, fmt.Errorf("scan usage totals: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage totals: %w", err)
	}
	return totals, nil
}

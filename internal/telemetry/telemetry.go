// Package telemetry keeps a local history of target runs in SQLite so
// flaky or slow steps can be spotted across runs.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Telemetry records step results. A Telemetry opened with an empty path is
// disabled: writes are dropped and reads return nothing.
type Telemetry struct {
	db *sql.DB
}

// Event is one finished (or skipped) step.
type Event struct {
	Timestamp time.Time
	RunID     string
	Target    string
	Step      string
	Command   string
	Status    string
	ExitCode  int
	Duration  time.Duration
}

// Open opens or creates the history database at path.
func Open(path string) (*Telemetry, error) {
	if path == "" {
		return &Telemetry{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	t := &Telemetry{db: db}
	if err := t.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return t, nil
}

// Enabled reports whether events are persisted.
func (t *Telemetry) Enabled() bool { return t != nil && t.db != nil }

func (t *Telemetry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS step_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		run_id TEXT NOT NULL,
		target TEXT NOT NULL,
		step TEXT NOT NULL,
		command TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_step_events_timestamp ON step_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_step_events_target ON step_events(target);
	`

	_, err := t.db.Exec(schema)
	return err
}

// RecordEvent stores one event.
func (t *Telemetry) RecordEvent(ctx context.Context, event Event) error {
	if !t.Enabled() {
		return nil
	}

	query := `
		INSERT INTO step_events
		(timestamp, run_id, target, step, command, status, exit_code, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := t.db.ExecContext(ctx,
		query,
		event.Timestamp.UTC().Format(timeLayout),
		event.RunID,
		event.Target,
		event.Step,
		event.Command,
		event.Status,
		event.ExitCode,
		event.Duration.Milliseconds(),
	)
	return err
}

// Recent returns up to limit events, newest first. An empty target matches
// every target.
func (t *Telemetry) Recent(ctx context.Context, target string, limit int) ([]Event, error) {
	if !t.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT timestamp, run_id, target, step, command, status, exit_code, duration_ms
		FROM step_events
		WHERE (? = '' OR target = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := t.db.QueryContext(ctx, query, target, target, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e     Event
			ts    string
			durMS int64
		)
		if err := rows.Scan(&ts, &e.RunID, &e.Target, &e.Step, &e.Command, &e.Status, &e.ExitCode, &durMS); err != nil {
			return nil, err
		}
		e.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", ts, err)
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		events = append(events, e)
	}

	return events, rows.Err()
}

// PassRate returns the share of executed steps of target that passed.
// Skipped steps are not counted.
func (t *Telemetry) PassRate(ctx context.Context, target string) (float64, error) {
	if !t.Enabled() {
		return 0, nil
	}

	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'passed' THEN 1 ELSE 0 END), 0) as passed
		FROM step_events
		WHERE target = ? AND status != 'skipped'
	`

	var total, passed int
	if err := t.db.QueryRowContext(ctx, query, target).Scan(&total, &passed); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(passed) / float64(total), nil
}

// Close closes the database connection.
func (t *Telemetry) Close() error {
	if !t.Enabled() {
		return nil
	}
	return t.db.Close()
}

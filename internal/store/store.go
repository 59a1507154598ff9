// Package store keeps the history of verification runs in SQLite and writes
// JSON run reports.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tabide/pagecheck/internal/types"
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// RunSummary is one row of run history
type RunSummary struct {
	ID              string
	Name            string
	BaseURL         string
	Status          types.Status
	StartedAt       time.Time
	FinishedAt      time.Time
	StepsTotal      int
	StepsCompleted  int
	Error           string
	ErrorScreenshot string
}

// Duration returns how long the run took
func (r RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Concurrent suites record through one connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		base_url TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		steps_total INTEGER NOT NULL,
		steps_completed INTEGER NOT NULL,
		error TEXT,
		error_screenshot TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS step_results (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step_index INTEGER NOT NULL,
		name TEXT,
		url TEXT,
		status TEXT NOT NULL,
		screenshot TEXT,
		duration_ms INTEGER NOT NULL,
		error TEXT,
		PRIMARY KEY (run_id, step_index)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordRun saves a run and its step results. Recording the same run again
// replaces it.
func (s *Store) RecordRun(r *types.RunResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, name, base_url, status, started_at, finished_at,
			steps_total, steps_completed, error, error_screenshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			steps_completed = excluded.steps_completed,
			error = excluded.error,
			error_screenshot = excluded.error_screenshot
	`, r.ID, r.Name, r.BaseURL, string(r.Status), r.StartedAt, r.FinishedAt,
		r.StepsTotal, r.StepsCompleted, r.Error, r.ErrorScreenshot)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM step_results WHERE run_id = ?`, r.ID); err != nil {
		return fmt.Errorf("failed to clear step results: %w", err)
	}

	for _, st := range r.Steps {
		_, err := tx.Exec(`
			INSERT INTO step_results (run_id, step_index, name, url, status, screenshot, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, st.Index, st.Name, st.URL, string(st.Status), st.Screenshot, st.Duration.Milliseconds(), st.Error)
		if err != nil {
			return fmt.Errorf("failed to save step %d: %w", st.Index, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, name, base_url, status, started_at, finished_at,
			steps_total, steps_completed, error, error_screenshot
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var status string
		var runErr, shot sql.NullString

		err := rows.Scan(&r.ID, &r.Name, &r.BaseURL, &status, &r.StartedAt, &r.FinishedAt,
			&r.StepsTotal, &r.StepsCompleted, &runErr, &shot)
		if err != nil {
			return nil, err
		}

		r.Status = types.Status(status)
		r.Error = runErr.String
		r.ErrorScreenshot = shot.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunSteps returns the recorded steps of one run in execution order
func (s *Store) RunSteps(runID string) ([]types.StepResult, error) {
	rows, err := s.db.Query(`
		SELECT step_index, name, url, status, screenshot, duration_ms, error
		FROM step_results
		WHERE run_id = ?
		ORDER BY step_index
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []types.StepResult
	for rows.Next() {
		var st types.StepResult
		var name, url, shot, stepErr sql.NullString
		var status string
		var ms int64

		if err := rows.Scan(&st.Index, &name, &url, &status, &shot, &ms, &stepErr); err != nil {
			return nil, err
		}

		st.Name = name.String
		st.URL = url.String
		st.Status = types.Status(status)
		st.Screenshot = shot.String
		st.Duration = time.Duration(ms) * time.Millisecond
		st.Error = stepErr.String
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

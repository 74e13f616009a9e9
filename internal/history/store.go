// Copyright 2026 The Gridrun Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists run results to a local SQLite database so past
// runs can be listed and inspected after the process exits.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gridrun/gridrun/pkg/errors"
	"github.com/gridrun/gridrun/pkg/pipeline"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	pipeline    TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL,
	jobs_total  INTEGER NOT NULL,
	jobs_failed INTEGER NOT NULL,
	report      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline, started_at);
`

// Store is a SQLite-backed run archive.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "gridrun", "history.db"), nil
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// The driver is in-process; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun archives a finished run, full report included.
func (s *Store) RecordRun(ctx context.Context, result *pipeline.RunResult) error {
	report, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	counts := result.Counts()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, pipeline, status, started_at, duration_ms, jobs_total, jobs_failed, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Pipeline,
		string(result.Status),
		result.StartedAt.UTC(),
		result.Duration.Milliseconds(),
		counts.Total,
		counts.Failed,
		string(report),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	JobsTotal  int       `json:"jobs_total"`
	JobsFailed int       `json:"jobs_failed"`
}

// ListRuns returns the most recent runs, newest first. A pipeline filter of
// "" matches all pipelines.
func (s *Store) ListRuns(ctx context.Context, pipelineName string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_id, pipeline, status, started_at, duration_ms, jobs_total, jobs_failed
		FROM runs`
	args := []interface{}{}
	if pipelineName != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipelineName)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.Pipeline, &s.Status, &s.StartedAt, &s.DurationMS, &s.JobsTotal, &s.JobsFailed); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// GetRun loads the full report of an archived run.
func (s *Store) GetRun(ctx context.Context, runID string) (*pipeline.RunResult, error) {
	var report string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM runs WHERE run_id = ?`, runID,
	).Scan(&report)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	var result pipeline.RunResult
	if err := json.Unmarshal([]byte(report), &result); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	return &result, nil
}

// Prune removes runs older than the cutoff and returns the deleted count.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Copyright 2025 Tom Barlow
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

package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/savepoint/pkg/errors"
	"github.com/tombee/savepoint/pkg/workflow"
)

// SQLiteStore provides SQLite-backed checkpoint persistence, so runs can be
// resumed across process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig contains SQLite storage configuration.
type SQLiteConfig struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	// With WAL mode SQLite handles multiple concurrent readers.
	MaxOpenConns int
}

// NewSQLiteStore creates a new SQLite-backed checkpoint store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, &errors.ValidationError{
			Field:   "path",
			Message: "database path is required",
		}
	}

	// WAL mode for better concurrency between writers and readers
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	migrations := []string{
		// Runs table preserves run insertion order via rowid
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,

		// Checkpoints table; rowid preserves append order within a run.
		// Event type tags are denormalized into their own columns so the
		// read-side filter never has to parse event JSON.
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			last_completed_step TEXT NOT NULL,
			input_type TEXT NOT NULL,
			output_type TEXT NOT NULL,
			input_event TEXT NOT NULL,
			output_event TEXT NOT NULL,
			context_state BLOB,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON checkpoints(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_step ON checkpoints(last_completed_step)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateRun registers a run with an empty checkpoint list.
func (s *SQLiteStore) CreateRun(ctx context.Context, runID string) error {
	if runID == "" {
		return &errors.ValidationError{
			Field:   "run_id",
			Message: "run ID cannot be empty",
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (run_id, created_at) VALUES (?, ?)`,
		runID, time.Now().UnixMilli(),
	)
	if err != nil {
		return &errors.StorageError{Op: "create_run", RunID: runID, Cause: err}
	}
	return nil
}

// Append adds a checkpoint to the end of its run's list.
func (s *SQLiteStore) Append(ctx context.Context, cp Checkpoint) error {
	if cp.RunID == "" || cp.ID == "" {
		return &errors.ValidationError{
			Field:   "checkpoint",
			Message: "checkpoint ID and run ID are required",
		}
	}

	inputJSON, err := json.Marshal(cp.InputEvent)
	if err != nil {
		return &errors.StorageError{Op: "append", RunID: cp.RunID, Cause: err}
	}
	outputJSON, err := json.Marshal(cp.OutputEvent)
	if err != nil {
		return &errors.StorageError{Op: "append", RunID: cp.RunID, Cause: err}
	}

	if err := s.CreateRun(ctx, cp.RunID); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints
			(id, run_id, last_completed_step, input_type, output_type,
			 input_event, output_event, context_state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.RunID, cp.LastCompletedStep,
		cp.InputEvent.Type, cp.OutputEvent.Type,
		string(inputJSON), string(outputJSON),
		cp.ContextState, cp.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return &errors.StorageError{Op: "append", RunID: cp.RunID, Cause: err}
	}
	return nil
}

// Run returns the ordered checkpoint list for one run.
func (s *SQLiteStore) Run(ctx context.Context, runID string) ([]Checkpoint, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, &errors.StorageError{Op: "list", RunID: runID, Cause: err}
	}
	if exists == 0 {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}

	rows, err := s.db.QueryContext(ctx,
		checkpointColumns+` FROM checkpoints c WHERE c.run_id = ? ORDER BY c.rowid`, runID)
	if err != nil {
		return nil, &errors.StorageError{Op: "list", RunID: runID, Cause: err}
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// All returns every run's ordered checkpoint list, keyed by run ID.
func (s *SQLiteStore) All(ctx context.Context) (map[string][]Checkpoint, error) {
	all := make(map[string][]Checkpoint)

	runRows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY rowid`)
	if err != nil {
		return nil, &errors.StorageError{Op: "list", Cause: err}
	}
	defer runRows.Close()
	for runRows.Next() {
		var runID string
		if err := runRows.Scan(&runID); err != nil {
			return nil, &errors.StorageError{Op: "list", Cause: err}
		}
		all[runID] = []Checkpoint{}
	}
	if err := runRows.Err(); err != nil {
		return nil, &errors.StorageError{Op: "list", Cause: err}
	}

	rows, err := s.db.QueryContext(ctx,
		checkpointColumns+` FROM checkpoints c ORDER BY c.rowid`)
	if err != nil {
		return nil, &errors.StorageError{Op: "list", Cause: err}
	}
	defer rows.Close()

	cps, err := scanCheckpoints(rows)
	if err != nil {
		return nil, err
	}
	for _, cp := range cps {
		all[cp.RunID] = append(all[cp.RunID], cp)
	}
	return all, nil
}

// Filter returns matching checkpoints in run-insertion then append order.
func (s *SQLiteStore) Filter(ctx context.Context, f Filter) ([]Checkpoint, error) {
	query := checkpointColumns + ` FROM checkpoints c
		JOIN runs r ON c.run_id = r.run_id`

	var conds []string
	var args []any
	if f.LastCompletedStep != "" {
		conds = append(conds, "c.last_completed_step = ?")
		args = append(args, f.LastCompletedStep)
	}
	if f.InputEventType != "" {
		conds = append(conds, "c.input_type = ?")
		args = append(args, f.InputEventType)
	}
	if f.OutputEventType != "" {
		conds = append(conds, "c.output_type = ?")
		args = append(args, f.OutputEventType)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY r.rowid, c.rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &errors.StorageError{Op: "filter", Cause: err}
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// Prune removes a run and its checkpoints.
func (s *SQLiteStore) Prune(ctx context.Context, runID string) error {
	// Foreign keys are enabled per-connection in SQLite, so delete the
	// checkpoints explicitly rather than relying on cascade.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE run_id = ?`, runID); err != nil {
		return &errors.StorageError{Op: "prune", RunID: runID, Cause: err}
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return &errors.StorageError{Op: "prune", RunID: runID, Cause: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// checkpointColumns is the shared SELECT list; queries using it must alias
// the checkpoints table as c.
const checkpointColumns = `SELECT c.id, c.run_id, c.last_completed_step,
	c.input_event, c.output_event, c.context_state, c.created_at`

// scanCheckpoints reads checkpoint rows produced by checkpointColumns.
func scanCheckpoints(rows *sql.Rows) ([]Checkpoint, error) {
	var results []Checkpoint
	for rows.Next() {
		var (
			cp         Checkpoint
			inputJSON  string
			outputJSON string
			createdAt  int64
		)
		if err := rows.Scan(&cp.ID, &cp.RunID, &cp.LastCompletedStep,
			&inputJSON, &outputJSON, &cp.ContextState, &createdAt); err != nil {
			return nil, &errors.StorageError{Op: "scan", Cause: err}
		}

		var in, out workflow.Event
		if err := json.Unmarshal([]byte(inputJSON), &in); err != nil {
			return nil, &errors.StorageError{Op: "scan", RunID: cp.RunID, Cause: err}
		}
		if err := json.Unmarshal([]byte(outputJSON), &out); err != nil {
			return nil, &errors.StorageError{Op: "scan", RunID: cp.RunID, Cause: err}
		}
		cp.InputEvent = in
		cp.OutputEvent = out
		cp.CreatedAt = time.UnixMilli(createdAt)
		results = append(results, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.StorageError{Op: "scan", Cause: err}
	}
	return results, nil
}

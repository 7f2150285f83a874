// Package store persists the retrieval index, synthesized tests, and run
// results in a local SQLite database. Persistence failures are fatal for
// the pipeline: a run that could not durably record its index is treated
// as not having recorded it at all.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"surfacecheck/internal/executor"
	"surfacecheck/internal/logging"
	"surfacecheck/internal/mapping"
	"surfacecheck/internal/retrieval"
)

// Store wraps the SQLite database. All writes are serialized; the
// pipeline is single-threaded but the CLI may read while a run is open.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates or opens the database at path, creating the schema and
// parent directory as needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("store opened at %s", path)
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_entries (
		id TEXT PRIMARY KEY,
		source_label TEXT NOT NULL,
		rows_json TEXT NOT NULL,
		rendered_text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_entries_source ON index_entries(source_label);

	CREATE TABLE IF NOT EXISTS test_specs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		priority TEXT,
		target_field TEXT,
		target_selector TEXT,
		spec_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_specs_kind ON test_specs(kind);
	CREATE INDEX IF NOT EXISTS idx_specs_priority ON test_specs(priority);

	CREATE TABLE IF NOT EXISTS test_runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		run_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS test_outcomes (
		run_id TEXT NOT NULL,
		test_id TEXT NOT NULL,
		status TEXT NOT NULL,
		outcome_json TEXT NOT NULL,
		PRIMARY KEY (run_id, test_id)
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_status ON test_outcomes(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveIndex replaces the persisted index snapshot with the given entries.
func (s *Store) SaveIndex(entries []retrieval.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := logging.StartTimer(logging.CategoryStore, "SaveIndex")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM index_entries`); err != nil {
		return fmt.Errorf("failed to clear index entries: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO index_entries (id, source_label, rows_json, rendered_text, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		rowsJSON, err := json.Marshal(entry.Rows)
		if err != nil {
			return fmt.Errorf("failed to encode rows for %s: %w", entry.ID, err)
		}
		if _, err := stmt.Exec(entry.ID, entry.SourceLabel, string(rowsJSON), entry.RenderedText, encodeVector(entry.Embedding)); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", entry.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index snapshot: %w", err)
	}
	logging.Store("persisted %d index entries", len(entries))
	return nil
}

// LoadIndex reads the persisted index snapshot back.
func (s *Store) LoadIndex() ([]retrieval.Entry, error) {
	rows, err := s.db.Query(`SELECT id, source_label, rows_json, rendered_text, embedding FROM index_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query index entries: %w", err)
	}
	defer rows.Close()

	var entries []retrieval.Entry
	for rows.Next() {
		var (
			entry    retrieval.Entry
			rowsJSON string
			blob     []byte
		)
		if err := rows.Scan(&entry.ID, &entry.SourceLabel, &rowsJSON, &entry.RenderedText, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %w", err)
		}
		if err := json.Unmarshal([]byte(rowsJSON), &entry.Rows); err != nil {
			return nil, fmt.Errorf("failed to decode rows for %s: %w", entry.ID, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", entry.ID, err)
		}
		entry.Embedding = vec
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SaveTests upserts test specifications keyed by id.
func (s *Store) SaveTests(tests []mapping.TestSpecification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO test_specs (id, kind, priority, target_field, target_selector, spec_json) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, test := range tests {
		specJSON, err := json.Marshal(test)
		if err != nil {
			return fmt.Errorf("failed to encode test %s: %w", test.ID, err)
		}
		if _, err := stmt.Exec(test.ID, string(test.Kind), test.Priority, test.TargetField, test.TargetSelector, string(specJSON)); err != nil {
			return fmt.Errorf("failed to insert test %s: %w", test.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tests: %w", err)
	}
	logging.Store("persisted %d test specs", len(tests))
	return nil
}

// TestByID loads one test specification.
func (s *Store) TestByID(id string) (*mapping.TestSpecification, error) {
	var specJSON string
	err := s.db.QueryRow(`SELECT spec_json FROM test_specs WHERE id = ?`, id).Scan(&specJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("test %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query test %s: %w", id, err)
	}
	var spec mapping.TestSpecification
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return nil, fmt.Errorf("failed to decode test %s: %w", id, err)
	}
	return &spec, nil
}

// TestsByKind lists specifications of one kind.
func (s *Store) TestsByKind(kind mapping.TestKind) ([]mapping.TestSpecification, error) {
	return s.queryTests(`SELECT spec_json FROM test_specs WHERE kind = ? ORDER BY created_at`, string(kind))
}

// TestsByPriority lists specifications at one priority.
func (s *Store) TestsByPriority(priority string) ([]mapping.TestSpecification, error) {
	return s.queryTests(`SELECT spec_json FROM test_specs WHERE priority = ? ORDER BY created_at`, priority)
}

// AllTests lists every persisted specification.
func (s *Store) AllTests() ([]mapping.TestSpecification, error) {
	return s.queryTests(`SELECT spec_json FROM test_specs ORDER BY created_at`)
}

func (s *Store) queryTests(query string, args ...any) ([]mapping.TestSpecification, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tests: %w", err)
	}
	defer rows.Close()

	var specs []mapping.TestSpecification
	for rows.Next() {
		var specJSON string
		if err := rows.Scan(&specJSON); err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		var spec mapping.TestSpecification
		if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
			return nil, fmt.Errorf("failed to decode test: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// SaveRun persists a sealed run plus its per-test outcomes.
func (s *Store) SaveRun(run *executor.TestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.RunID, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO test_runs (run_id, started_at, passed, failed, skipped, errors, duration_ms, run_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt, run.Passed, run.Failed, run.Skipped, run.Errors, run.DurationMs, string(runJSON))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO test_outcomes (run_id, test_id, status, outcome_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, outcome := range run.Outcomes {
		outcomeJSON, err := json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("failed to encode outcome %s: %w", outcome.TestID, err)
		}
		if _, err := stmt.Exec(run.RunID, outcome.TestID, string(outcome.Status), string(outcomeJSON)); err != nil {
			return fmt.Errorf("failed to insert outcome %s: %w", outcome.TestID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.RunID, err)
	}
	logging.Store("persisted run %s with %d outcomes", run.RunID, len(run.Outcomes))
	return nil
}

// RunByID loads a persisted run.
func (s *Store) RunByID(runID string) (*executor.TestRun, error) {
	var runJSON string
	err := s.db.QueryRow(`SELECT run_json FROM test_runs WHERE run_id = ?`, runID).Scan(&runJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	var run executor.TestRun
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &run, nil
}

// LatestRun loads the most recently started run, or nil when none exists.
func (s *Store) LatestRun() (*executor.TestRun, error) {
	var runJSON string
	err := s.db.QueryRow(`SELECT run_json FROM test_runs ORDER BY started_at DESC LIMIT 1`).Scan(&runJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	var run executor.TestRun
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to decode latest run: %w", err)
	}
	return &run, nil
}

// OutcomesByStatus lists a run's outcomes with the given status.
func (s *Store) OutcomesByStatus(runID string, status executor.Status) ([]executor.TestOutcome, error) {
	rows, err := s.db.Query(`SELECT outcome_json FROM test_outcomes WHERE run_id = ? AND status = ?`, runID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []executor.TestOutcome
	for rows.Next() {
		var outcomeJSON string
		if err := rows.Scan(&outcomeJSON); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		var outcome executor.TestOutcome
		if err := json.Unmarshal([]byte(outcomeJSON), &outcome); err != nil {
			return nil, fmt.Errorf("failed to decode outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

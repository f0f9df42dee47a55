package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"forge/orchestrate"
)

// Store persists completed workflow runs in an engine-owned SQLite
// database. It lives outside every project directory; project trees
// carry no engine state.
type Store struct {
	db *sql.DB
}

// Entry is a summarized workflow run.
type Entry struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	ProjectPath string    `json:"project_path"`
	CreatedAt   time.Time `json:"created_at"`
	Iterations  int       `json:"iterations"`
	Files       int       `json:"files"`
	TestSuccess bool      `json:"test_success"`
	Findings    int       `json:"findings"`
}

// NewStore opens (creating if needed) the history database.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		project_path TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		iterations INTEGER NOT NULL,
		files INTEGER NOT NULL,
		test_success INTEGER NOT NULL,
		findings INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS iteration_records (
		workflow_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		completion_ratio REAL NOT NULL,
		test_success INTEGER,
		record_json TEXT NOT NULL,
		PRIMARY KEY (workflow_id, idx),
		FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_workflows_created ON workflows(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists one workflow result with its iteration records.
func (s *Store) Record(result *orchestrate.Result) error {
	testSuccess := 0
	if result.FinalTest != nil && result.FinalTest.Success {
		testSuccess = 1
	}
	findings := 0
	if result.Security != nil {
		findings = result.Security.Total
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO workflows (id, task, project_path, iterations, files, test_success, findings)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.WorkflowID, result.Task, result.ProjectPath,
		len(result.Iterations), len(result.Files), testSuccess, findings,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}

	for _, record := range result.Iterations {
		recordJSON, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal iteration record: %w", err)
		}
		var iterSuccess any
		if record.TestResult != nil {
			iterSuccess = record.TestResult.Success
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO iteration_records (workflow_id, idx, completion_ratio, test_success, record_json)
			 VALUES (?, ?, ?, ?, ?)`,
			result.WorkflowID, record.Index, record.CompletionRatio(), iterSuccess, string(recordJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert iteration record: %w", err)
		}
	}

	return tx.Commit()
}

// Recent returns the n most recent workflow entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, task, project_path, created_at, iterations, files, test_success, findings
		 FROM workflows ORDER BY created_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var testSuccess, findings int
		if err := rows.Scan(&e.ID, &e.Task, &e.ProjectPath, &e.CreatedAt, &e.Iterations, &e.Files, &testSuccess, &findings); err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		e.TestSuccess = testSuccess == 1
		e.Findings = findings
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IterationRecords returns a workflow's stored iteration records in
// order.
func (s *Store) IterationRecords(workflowID string) ([]orchestrate.IterationRecord, error) {
	rows, err := s.db.Query(
		`SELECT record_json FROM iteration_records WHERE workflow_id = ? ORDER BY idx`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iteration records: %w", err)
	}
	defer rows.Close()

	var records []orchestrate.IterationRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan iteration row: %w", err)
		}
		var record orchestrate.IterationRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Package history keeps an SQLite audit ledger of sync runs.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("history store is closed")

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the ledger at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		bucket TEXT NOT NULL,
		local_root TEXT NOT NULL,
		dry_run INTEGER NOT NULL,
		total INTEGER NOT NULL,
		downloaded INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		not_found INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		unprocessed INTEGER NOT NULL,
		aborted INTEGER NOT NULL,
		fatal TEXT
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		sku TEXT NOT NULL,
		state TEXT NOT NULL,
		object_key TEXT,
		path TEXT,
		bytes INTEGER DEFAULT 0,
		attempts INTEGER DEFAULT 0,
		reason TEXT,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_state ON outcomes(run_id, state);
	`

	_, err := s.db.Exec(query)
	return err
}

// SaveRun stores the run row and all of its outcomes in one transaction
func (s *SQLiteStore) SaveRun(run Run, outcomes []OutcomeRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	// Serialize writes to avoid SQLITE_BUSY from multiple concurrent writers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveRunWithTransaction(run, outcomes)
	})
}

func (s *SQLiteStore) saveRunWithTransaction(run Run, outcomes []OutcomeRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT INTO runs
	(id, started_at, finished_at, bucket, local_root, dry_run, total, downloaded,
	 skipped, not_found, failed, unprocessed, aborted, fatal)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Bucket,
		run.LocalRoot,
		run.DryRun,
		run.Total,
		run.Downloaded,
		run.Skipped,
		run.NotFound,
		run.Failed,
		run.Unprocessed,
		run.Aborted,
		run.Fatal,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO outcomes
	(run_id, position, sku, state, object_key, path, bytes, attempts, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.Exec(run.ID, o.Position, o.SKU, o.State, o.Key, o.Path, o.Bytes, o.Attempts, o.Reason); err != nil {
			return fmt.Errorf("failed to insert outcome %s: %w", o.SKU, err)
		}
	}

	return tx.Commit()
}

// retryOnBusy retries the operation if SQLite is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}
		delay := baseDelay * time.Duration(1<<uint(attempt))
		jitter := time.Duration(attempt*10) * time.Millisecond
		time.Sleep(delay + jitter)
	}
	return err
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
	SELECT id, started_at, finished_at, bucket, local_root, dry_run, total, downloaded,
	       skipped, not_found, failed, unprocessed, aborted, fatal
	FROM runs
	ORDER BY started_at DESC, rowid DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var fatal sql.NullString

		err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Bucket,
			&run.LocalRoot,
			&run.DryRun,
			&run.Total,
			&run.Downloaded,
			&run.Skipped,
			&run.NotFound,
			&run.Failed,
			&run.Unprocessed,
			&run.Aborted,
			&fatal,
		)
		if err != nil {
			return nil, err
		}
		run.Fatal = fatal.String

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListOutcomes returns a run's outcomes in input order, optionally
// filtered by state
func (s *SQLiteStore) ListOutcomes(runID, state string) ([]OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	query := `
	SELECT run_id, position, sku, state, object_key, path, bytes, attempts, reason
	FROM outcomes WHERE run_id = ?`
	args := []any{runID}
	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}
	query += " ORDER BY position ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutcomeRecord
	for rows.Next() {
		var record OutcomeRecord
		var key, path, reason sql.NullString

		err := rows.Scan(
			&record.RunID,
			&record.Position,
			&record.SKU,
			&record.State,
			&key,
			&path,
			&record.Bytes,
			&record.Attempts,
			&reason,
		)
		if err != nil {
			return nil, err
		}
		record.Key = key.String
		record.Path = path.String
		record.Reason = reason.String

		records = append(records, record)
	}

	return records, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage handles all ledger database operations
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		base_url TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		termination_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS articles (
		article_id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		title TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		directory TEXT NOT NULL DEFAULT '',
		images_written INTEGER DEFAULT 0,
		bytes_written INTEGER DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER DEFAULT 0,
		recorded_at TIMESTAMP NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_articles_run ON articles(run_id);
	CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// BeginRun records the start of a harvester run
func (s *Storage) BeginRun(runID, baseURL string, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, base_url, started_at)
		VALUES (?, ?, ?)
	`, runID, baseURL, startedAt)
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// FinishRun stamps the end time and termination reason of a run
func (s *Storage) FinishRun(runID, reason string, finishedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, termination_reason = ?
		WHERE run_id = ?
	`, finishedAt, reason, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun retrieves a run by ID, returns nil if not found
func (s *Storage) GetRun(runID string) (*Run, error) {
	var run Run
	var finished sql.NullTime
	err := s.db.QueryRow(`
		SELECT run_id, base_url, started_at, finished_at, termination_reason
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.BaseURL, &run.StartedAt, &finished, &run.TerminationReason)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// ListRuns returns every recorded run, newest first
func (s *Storage) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, base_url, started_at, finished_at, termination_reason
		FROM runs
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		if err := rows.Scan(&run.RunID, &run.BaseURL, &run.StartedAt, &finished, &run.TerminationReason); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// SaveArticles writes article records for a run in a single transaction.
// A record with an existing (run, seq) pair replaces the previous row.
func (s *Storage) SaveArticles(runID string, records []ArticleRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO articles (run_id, seq, title, path, status, reason, directory,
			images_written, bytes_written, error, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			directory = EXCLUDED.directory,
			images_written = EXCLUDED.images_written,
			bytes_written = EXCLUDED.bytes_written,
			error = EXCLUDED.error,
			duration_ms = EXCLUDED.duration_ms,
			recorded_at = EXCLUDED.recorded_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare article insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.Exec(runID, r.Seq, r.Title, r.Path, string(r.Status), string(r.Reason),
			r.Directory, r.ImagesWritten, r.BytesWritten, r.Error, r.DurationMs, r.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to save article %d: %w", r.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit articles: %w", err)
	}
	return nil
}

// ListArticles returns all article records of a run ordered by listing position
func (s *Storage) ListArticles(runID string) ([]ArticleRecord, error) {
	rows, err := s.db.Query(`
		SELECT seq, title, path, status, reason, directory, images_written,
			bytes_written, error, duration_ms, recorded_at
		FROM articles
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var records []ArticleRecord
	for rows.Next() {
		var r ArticleRecord
		var status, reason string
		if err := rows.Scan(&r.Seq, &r.Title, &r.Path, &status, &reason, &r.Directory,
			&r.ImagesWritten, &r.BytesWritten, &r.Error, &r.DurationMs, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		r.Status = Status(status)
		r.Reason = Reason(reason)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating articles: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

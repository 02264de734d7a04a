// Package history keeps a persistent record of every document the
// daemon handled: OCR'd, skipped as already searchable, or failed. The
// record backs the admin API and the retention sweep.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Document processing outcomes.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Entry is one processed-document record.
type Entry struct {
	ID          string        `json:"id"`
	SourcePath  string        `json:"source_path"`
	OutputPath  string        `json:"output_path,omitempty"`
	Disposition string        `json:"disposition"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Pages       int           `json:"pages"`
	Duration    time.Duration `json:"duration_ms"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Store persists entries in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the history database at path, creating parent
// directories as needed. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Record inserts one entry. A missing ID and timestamp are filled in.
func (s *Store) Record(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, source_path, output_path, disposition, status, error, pages, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourcePath, e.OutputPath, e.Disposition, e.Status, e.Error,
		e.Pages, e.Duration.Milliseconds(), e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.SourcePath, err)
	}
	return nil
}

// List returns the most recent entries, newest first. limit <= 0 means
// a default of 100.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, source_path, output_path, disposition, status, error, pages, duration_ms, created_at
		FROM documents ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var durMS, created int64
		if err := rows.Scan(&e.ID, &e.SourcePath, &e.OutputPath, &e.Disposition,
			&e.Status, &e.Error, &e.Pages, &durMS, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.CreatedAt = time.Unix(created, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than the retention window and returns
// how many were removed. retentionDays <= 0 disables the sweep.
func (s *Store) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays).Unix()
	res, err := s.db.Exec(`DELETE FROM documents WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: cleanup: %w", err)
	}
	return res.RowsAffected()
}

package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"laughtrackr/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// FileName is the database file created inside the data directory.
const FileName = "history.db"

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// ErrSchemaMismatch indicates the database was written by an incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store keeps completed analyses in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenInDir opens (or creates) the history database inside dataDir.
func OpenInDir(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	return Open(filepath.Join(dataDir, FileName))
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

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

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores one completed analysis. Re-recording the same job key
// replaces the earlier row.
func (s *Store) Record(ctx context.Context, entry domain.HistoryEntry) error {
	if entry.Key == "" {
		return errors.New("history entry requires a job key")
	}
	segments := entry.Segments
	if segments == nil {
		segments = domain.SegmentSet{}
	}
	payload, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	completedAt := entry.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO analyses (job_key, job_id, file_name, file_size, segment_count, segments_json, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_key) DO UPDATE SET
    job_id = excluded.job_id,
    file_name = excluded.file_name,
    file_size = excluded.file_size,
    segment_count = excluded.segment_count,
    segments_json = excluded.segments_json,
    completed_at = excluded.completed_at`,
		entry.Key,
		entry.JobID,
		entry.FileName,
		entry.FileSize,
		len(entry.Segments),
		string(payload),
		completedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// List returns the most recent analyses, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT job_key, job_id, file_name, file_size, segment_count, segments_json, completed_at
FROM analyses
ORDER BY completed_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return entries, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (domain.HistoryEntry, error) {
	var (
		entry       domain.HistoryEntry
		payload     string
		completedAt string
	)
	if err := scanner.Scan(
		&entry.Key,
		&entry.JobID,
		&entry.FileName,
		&entry.FileSize,
		&entry.SegmentCount,
		&payload,
		&completedAt,
	); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("scan analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &entry.Segments); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("decode segments for %s: %w", entry.Key, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, completedAt)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("parse completed_at %q: %w", completedAt, err)
	}
	entry.CompletedAt = ts
	return entry, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

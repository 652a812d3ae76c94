// Package history persists deploy trigger outcomes in a local SQLite
// database, shared by the relay server and the CLI.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History manages trigger history in SQLite.
type History struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at dbPath.
func New(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}
	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS triggers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project TEXT NOT NULL,
			image TEXT NOT NULL DEFAULT '',
			transport TEXT NOT NULL,
			ref TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			commit_hash TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_project_started
		ON triggers(project, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Insert records one trigger attempt and returns its row id.
func (h *History) Insert(ctx context.Context, record *Record) (int64, error) {
	started := record.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	startedAt := started.UTC().Format(time.RFC3339)

	var completedAt *string
	if record.CompletedAt != nil {
		formatted := record.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	} else {
		now := time.Now().UTC().Format(time.RFC3339)
		completedAt = &now
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO triggers
		(project, image, transport, ref, status, started_at, completed_at,
		 duration_seconds, commit_hash, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.Project,
		record.Image,
		record.Transport,
		record.Ref,
		record.Status,
		startedAt,
		completedAt,
		record.DurationSeconds,
		record.CommitHash,
		record.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trigger record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// Latest returns the most recent trigger attempt for a project, or nil when
// none exists.
func (h *History) Latest(ctx context.Context, project string) (*Record, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, project, image, transport, ref, status, started_at,
		       completed_at, duration_seconds, commit_hash, error_message
		FROM triggers
		WHERE project = ?
		ORDER BY id DESC
		LIMIT 1
	`, project)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest trigger: %w", err)
	}

	return record, nil
}

// ForProject returns the most recent trigger attempts for a project, newest
// first.
func (h *History) ForProject(ctx context.Context, project string, limit int) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, project, image, transport, ref, status, started_at,
		       completed_at, duration_seconds, commit_hash, error_message
		FROM triggers
		WHERE project = ?
		ORDER BY id DESC
		LIMIT ?
	`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger history: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Recent returns the most recent trigger attempts across all projects,
// newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, project, image, transport, ref, status, started_at,
		       completed_at, duration_seconds, commit_hash, error_message
		FROM triggers
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger history: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var record Record
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&record.ID,
		&record.Project,
		&record.Image,
		&record.Transport,
		&record.Ref,
		&record.Status,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&record.CommitHash,
		&record.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return &record, nil
}

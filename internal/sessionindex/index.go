// Package sessionindex maintains a derived, rebuildable sqlite index over
// the append-only session files internal/session owns. The newline-
// delimited JSON file on disk remains the source of truth; this index
// only lets a host enumerate and sort sessions without scanning the
// filesystem and replaying every file's MemoryStore.
package sessionindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no cgo
)

// ErrNotFound is returned when a lookup by session ID matches no row.
var ErrNotFound = errors.New("sessionindex: not found")

// Record is one derived row: enough to list and sort sessions, and to
// locate the file backing them, without touching the file itself.
type Record struct {
	ID          string
	Path        string
	LeafEntryID string
	Cwd         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Index wraps a sqlite-backed table of Records.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database at path and
// ensures the sessions table exists. Pass ":memory:" for an ephemeral,
// process-local index.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionindex: open %s: %w", path, err)
	}
	idx := &Index{db: db}
	if err := idx.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// newWithDB wraps an existing *sql.DB without running migrations,
// letting tests inject a go-sqlmock connection.
func newWithDB(db *sql.DB) *Index {
	return &Index{db: db}
}

func (idx *Index) init(ctx context.Context) error {
	_, err := idx.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			leaf_entry_id TEXT,
			cwd TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("sessionindex: create table: %w", err)
	}
	_, err = idx.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at)")
	if err != nil {
		return fmt.Errorf("sessionindex: create index: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the row for rec.ID. CreatedAt is preserved
// across an update: only the first Upsert for a given ID sets it.
func (idx *Index) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("sessionindex: record ID is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	existing, err := idx.Get(ctx, rec.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = rec.UpdatedAt
		}
	case err != nil:
		return err
	default:
		rec.CreatedAt = existing.CreatedAt
	}

	_, err = idx.db.ExecContext(ctx, `
		INSERT INTO sessions (id, path, leaf_entry_id, cwd, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			leaf_entry_id = excluded.leaf_entry_id,
			cwd = excluded.cwd,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Path, rec.LeafEntryID, rec.Cwd, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sessionindex: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves the record for id, or ErrNotFound if absent.
func (idx *Index) Get(ctx context.Context, id string) (*Record, error) {
	row := idx.db.QueryRowContext(ctx,
		"SELECT id, path, leaf_entry_id, cwd, created_at, updated_at FROM sessions WHERE id = ?", id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.Path, &rec.LeafEntryID, &rec.Cwd, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sessionindex: get %s: %w", id, err)
	}
	return &rec, nil
}

// List returns every indexed session, most recently updated first.
func (idx *Index) List(ctx context.Context) ([]Record, error) {
	rows, err := idx.db.QueryContext(ctx,
		"SELECT id, path, leaf_entry_id, cwd, created_at, updated_at FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("sessionindex: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.LeafEntryID, &rec.Cwd, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sessionindex: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sessionindex: list: %w", err)
	}
	return records, nil
}

// Delete removes the row for id. Deleting an absent id is not an error.
func (idx *Index) Delete(ctx context.Context, id string) error {
	if _, err := idx.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("sessionindex: delete %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

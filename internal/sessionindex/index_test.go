package sessionindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMockIndex(t *testing.T) (*Index, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newWithDB(db), mock
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	idx, _ := setupMockIndex(t)
	if err := idx.Upsert(context.Background(), Record{}); err == nil {
		t.Fatal("expected error for empty ID")
	}
}

func TestUpsertPropagatesDatabaseError(t *testing.T) {
	idx, mock := setupMockIndex(t)

	mock.ExpectQuery("SELECT id, path, leaf_entry_id, cwd, created_at, updated_at FROM sessions WHERE id = ?").
		WithArgs("sess-1").
		WillReturnError(errors.New("connection refused"))

	err := idx.Upsert(context.Background(), Record{ID: "sess-1", Path: "/tmp/sess-1.jsonl"})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestGetReturnsNotFoundWhenAbsent(t *testing.T) {
	idx, mock := setupMockIndex(t)

	mock.ExpectQuery("SELECT id, path, leaf_entry_id, cwd, created_at, updated_at FROM sessions WHERE id = ?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := idx.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// The remaining behavior (upsert-then-get round trip, created_at
// preservation across updates, list ordering, delete) is exercised
// against a real in-memory sqlite database rather than sqlmock's
// hand-specified expectations, since those are state-machine properties
// better verified against the actual driver than query-text assertions.

func newMemoryIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestUpsertThenGetRoundTrips(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	rec := Record{
		ID:          "sess-1",
		Path:        "/data/sessions/sess-1.jsonl",
		LeafEntryID: "entry-7",
		Cwd:         "/home/user/project",
	}
	if err := idx.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := idx.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Path != rec.Path || got.LeafEntryID != rec.LeafEntryID || got.Cwd != rec.Cwd {
		t.Errorf("Get() = %+v, want fields matching %+v", got, rec)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("expected CreatedAt/UpdatedAt to be populated")
	}
}

func TestUpsertPreservesCreatedAtAcrossUpdates(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	first := Record{ID: "sess-1", Path: "/a.jsonl", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := idx.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	second := Record{ID: "sess-1", Path: "/a.jsonl", LeafEntryID: "entry-2"}
	if err := idx.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := idx.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want preserved %v", got.CreatedAt, first.CreatedAt)
	}
	if got.LeafEntryID != "entry-2" {
		t.Errorf("LeafEntryID = %s, want entry-2 from the update", got.LeafEntryID)
	}
}

func TestListOrdersByUpdatedAtDescending(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	older := Record{ID: "sess-old", Path: "/old.jsonl", UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := Record{ID: "sess-new", Path: "/new.jsonl", UpdatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	if err := idx.Upsert(ctx, older); err != nil {
		t.Fatalf("Upsert(older) error = %v", err)
	}
	if err := idx.Upsert(ctx, newer); err != nil {
		t.Fatalf("Upsert(newer) error = %v", err)
	}

	records, err := idx.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "sess-new" || records[1].ID != "sess-old" {
		t.Errorf("List() order = [%s, %s], want [sess-new, sess-old]", records[0].ID, records[1].ID)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, Record{ID: "sess-1", Path: "/a.jsonl"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := idx.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := idx.Get(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteAbsentRecordIsNotError(t *testing.T) {
	idx := newMemoryIndex(t)
	if err := idx.Delete(context.Background(), "never-existed"); err != nil {
		t.Errorf("Delete() of absent id returned error: %v", err)
	}
}

package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentcore/runtime/internal/sessionindex"
	"github.com/agentcore/runtime/pkg/models"
)

func TestStoreOpenFreshWritesHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	s, err := Open(path, "sess-1", "/tmp", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	entries := s.Entries()
	if len(entries) != 1 || entries[0].EntryType != models.EntryHeader {
		t.Fatalf("expected a single Header entry in a fresh file, got %#v", entries)
	}
}

func TestStoreAppendPersistsAndReplays(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	ctx := context.Background()

	s, err := Open(path, "sess-1", "/tmp", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Append(ctx, models.WrapMessage(models.NewUserMessage("u1", "hello"))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, models.WrapMessage(models.NewUserMessage("u2", "world"))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path, "sess-1", "/tmp", "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	msgs, err := reopened.Reconstruct(ctx)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text() != "hello" || msgs[1].Text() != "world" {
		t.Fatalf("unexpected reconstructed messages after replay: %#v", msgs)
	}
}

func TestStoreBranchPersistsAcrossLeafReassignment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	ctx := context.Background()

	s, err := Open(path, "sess-1", "/tmp", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	_ = s.Append(ctx, models.WrapMessage(models.NewUserMessage("u1", "branch point")))
	branchPoint := s.Leaf()
	_ = s.Append(ctx, models.WrapMessage(models.NewUserMessage("u2", "abandoned")))

	if err := s.Branch(branchPoint); err != nil {
		t.Fatalf("branch: %v", err)
	}
	_ = s.Append(ctx, models.WrapMessage(models.NewUserMessage("u3", "alternate path")))

	msgs, err := s.Reconstruct(ctx)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text() != "branch point" || msgs[1].Text() != "alternate path" {
		t.Fatalf("expected branch to exclude the abandoned message, got %#v", msgs)
	}

	entries := s.Entries()
	if len(entries) != 4 { // header, branch point, abandoned, alternate path
		t.Fatalf("branching must not write a new entry; expected 4 entries on disk, got %d", len(entries))
	}
}

func TestStoreRejectsFileWithoutHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	if err := os.WriteFile(path, []byte(`{"id":"m1","entryType":"message"}`+"\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if _, err := Open(path, "sess-1", "/tmp", ""); err == nil {
		t.Fatal("expected Open to reject a file whose first line is not a Header entry")
	}
}

func TestStoreWithIndexStaysInSyncAcrossMutations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	ctx := context.Background()

	idx, err := sessionindex.Open(":memory:")
	if err != nil {
		t.Fatalf("sessionindex.Open: %v", err)
	}
	defer idx.Close()

	s, err := Open(path, "sess-1", "/repo", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	s.WithIndex(idx)

	rec, err := idx.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("index.Get after WithIndex: %v", err)
	}
	if rec.Path != path || rec.Cwd != "/repo" {
		t.Fatalf("unexpected record after WithIndex: %+v", rec)
	}
	headerLeaf := rec.LeafEntryID

	if err := s.Append(ctx, models.WrapMessage(models.NewUserMessage("u1", "hello"))); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, err = idx.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("index.Get after append: %v", err)
	}
	if rec.LeafEntryID == headerLeaf {
		t.Fatal("expected index leaf to advance after Append")
	}
	if rec.LeafEntryID != s.Leaf() {
		t.Fatalf("index leaf = %s, want %s", rec.LeafEntryID, s.Leaf())
	}
}

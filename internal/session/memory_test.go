package session

import (
	"context"
	"testing"

	"github.com/agentcore/runtime/pkg/models"
)

func TestMemoryStoreAppendAdvancesLeaf(t *testing.T) {
	s := NewMemoryStore("sess-1", "/tmp", "")
	header := s.Header()

	if err := s.Append(context.Background(), models.WrapMessage(models.NewUserMessage("u1", "hi"))); err != nil {
		t.Fatalf("append: %v", err)
	}
	leaf := s.Leaf()
	if leaf == header.ID {
		t.Fatal("expected leaf to advance past the header entry")
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].ParentID != header.ID {
		t.Fatalf("expected second entry's parent to be the header, got %q", entries[1].ParentID)
	}
}

func TestMemoryStoreReconstructFoldsMessagesInOrder(t *testing.T) {
	s := NewMemoryStore("sess-1", "/tmp", "")
	ctx := context.Background()

	_ = s.Append(ctx, models.WrapMessage(models.NewUserMessage("u1", "hello")))
	_ = s.Append(ctx, models.WrapMessage(models.NewUserMessage("u2", "world")))

	msgs, err := s.Reconstruct(ctx)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text() != "hello" || msgs[1].Text() != "world" {
		t.Fatalf("unexpected order/content: %q, %q", msgs[0].Text(), msgs[1].Text())
	}
}

func TestMemoryStoreBranchReassignsLeafWithoutWriting(t *testing.T) {
	s := NewMemoryStore("sess-1", "/tmp", "")
	ctx := context.Background()

	_ = s.Append(ctx, models.WrapMessage(models.NewUserMessage("u1", "first")))
	branchPoint := s.Leaf()
	_ = s.Append(ctx, models.WrapMessage(models.NewUserMessage("u2", "second")))

	before := len(s.Entries())
	if err := s.Branch(branchPoint); err != nil {
		t.Fatalf("branch: %v", err)
	}
	after := len(s.Entries())
	if before != after {
		t.Fatalf("branch should not write a new entry: before=%d after=%d", before, after)
	}

	msgs, err := s.Reconstruct(ctx)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text() != "first" {
		t.Fatalf("expected reconstruction from the branch point to see only the first message, got %#v", msgs)
	}
}

func TestMemoryStoreBranchUnknownEntryFails(t *testing.T) {
	s := NewMemoryStore("sess-1", "/tmp", "")
	if err := s.Branch("does-not-exist"); err == nil {
		t.Fatal("expected an error branching to an unknown entry")
	}
}

func TestFoldIgnoresHeaderLabelInfoCustom(t *testing.T) {
	header := models.NewHeaderEntry("h1", "sess-1", "/tmp", "")
	label := models.SessionEntry{ID: "l1", ParentID: "h1", EntryType: models.EntryLabel, Label: &models.LabelData{Name: "checkpoint"}}
	info := models.SessionEntry{ID: "i1", ParentID: "l1", EntryType: models.EntryInfo, SessionInfo: &models.SessionInfoData{Title: "t"}}
	custom := models.SessionEntry{ID: "c1", ParentID: "i1", EntryType: models.EntryCustom, Custom: &models.CustomData{Type: "note", Data: "x"}}
	msg := models.NewMessageEntry("m1", models.NewUserMessage("u1", "hello"))
	msg.ParentID = "c1"

	chain := []models.SessionEntry{header, label, info, custom, msg}
	out := Fold(chain)
	if len(out) != 1 || out[0].Text() != "hello" {
		t.Fatalf("expected only the Message entry to produce output, got %#v", out)
	}
}

func TestFoldUpdatesCursorsWithoutEmittingMessages(t *testing.T) {
	header := models.NewHeaderEntry("h1", "sess-1", "/tmp", "")
	thinking := models.SessionEntry{ID: "t1", ParentID: "h1", EntryType: models.EntryThinkingLevelChange, ThinkingLevelChange: &models.ThinkingLevelChangeData{Level: models.ThinkingHigh}}
	modelChange := models.SessionEntry{ID: "mc1", ParentID: "t1", EntryType: models.EntryModelChange, ModelChange: &models.ModelChangeData{Api: models.ApiAnthropicMessages, Provider: "anthropic", Model: "claude"}}

	msgs, cursors := FoldWithCursors([]models.SessionEntry{header, thinking, modelChange})
	if len(msgs) != 0 {
		t.Fatalf("expected no messages from cursor-only entries, got %#v", msgs)
	}
	if cursors.ThinkingLevel != models.ThinkingHigh || cursors.Model != "claude" || cursors.Api != models.ApiAnthropicMessages {
		t.Fatalf("unexpected cursors: %#v", cursors)
	}
}

func TestFoldCompactionClearsPriorMessages(t *testing.T) {
	header := models.NewHeaderEntry("h1", "sess-1", "/tmp", "")
	m1 := models.NewMessageEntry("m1", models.NewUserMessage("u1", "old message 1"))
	m1.ParentID = "h1"
	m2 := models.NewMessageEntry("m2", models.NewUserMessage("u2", "old message 2"))
	m2.ParentID = "m1"
	compaction := models.SessionEntry{
		ID: "comp1", ParentID: "m2", EntryType: models.EntryCompaction,
		Compaction: &models.CompactionData{Summary: "did stuff", FirstKeptEntryID: "m2", TokensBefore: 5000},
	}
	m3 := models.NewMessageEntry("m3", models.NewUserMessage("u3", "new message"))
	m3.ParentID = "comp1"

	out := Fold([]models.SessionEntry{header, m1, m2, compaction, m3})
	if len(out) != 2 {
		t.Fatalf("expected exactly 2 messages (synthetic summary + new message), got %d: %#v", len(out), out)
	}
	if out[0].Text() == "old message 1" || out[0].Text() == "old message 2" {
		t.Fatal("compaction should have cleared the pre-compaction messages")
	}
	if out[1].Text() != "new message" {
		t.Fatalf("expected the post-compaction message to survive, got %q", out[1].Text())
	}
}

func TestFoldBranchSummaryAppendsWithoutClearing(t *testing.T) {
	header := models.NewHeaderEntry("h1", "sess-1", "/tmp", "")
	m1 := models.NewMessageEntry("m1", models.NewUserMessage("u1", "kept message"))
	m1.ParentID = "h1"
	branchSummary := models.SessionEntry{
		ID: "bs1", ParentID: "m1", EntryType: models.EntryBranchSummary,
		BranchSummary: &models.BranchSummaryData{Summary: "diverged here", FromEntryID: "m1"},
	}

	out := Fold([]models.SessionEntry{header, m1, branchSummary})
	if len(out) != 2 {
		t.Fatalf("expected 2 messages (kept + branch summary), got %d: %#v", len(out), out)
	}
	if out[0].Text() != "kept message" {
		t.Fatalf("expected the prior message to survive a branch summary, got %q", out[0].Text())
	}
}

func TestFoldWithEntryIDsTracksOriginatingEntryPerMessage(t *testing.T) {
	header := models.NewHeaderEntry("h1", "sess-1", "/tmp", "")
	m1 := models.NewMessageEntry("m1", models.NewUserMessage("u1", "old message"))
	m1.ParentID = "h1"
	compaction := models.SessionEntry{
		ID: "comp1", ParentID: "m1", EntryType: models.EntryCompaction,
		Compaction: &models.CompactionData{Summary: "did stuff", FirstKeptEntryID: "m1", TokensBefore: 100},
	}
	m2 := models.NewMessageEntry("m2", models.NewUserMessage("u2", "new message"))
	m2.ParentID = "comp1"

	msgs, ids := FoldWithEntryIDs([]models.SessionEntry{header, m1, compaction, m2})
	if len(msgs) != len(ids) || len(msgs) != 2 {
		t.Fatalf("expected 2 messages parallel to 2 ids, got %d messages and %d ids", len(msgs), len(ids))
	}
	if ids[0] != "comp1" {
		t.Errorf("expected the synthetic summary message's id to be the Compaction entry's id, got %q", ids[0])
	}
	if ids[1] != "m2" {
		t.Errorf("expected the second message's id to be m2, got %q", ids[1])
	}
}

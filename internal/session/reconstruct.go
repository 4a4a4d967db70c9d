package session

import (
	"fmt"

	"github.com/agentcore/runtime/pkg/models"
)

// Cursors are the running state values ThinkingLevelChange and ModelChange
// entries update during a fold, rather than producing a message of their
// own. A host resuming a session reads Cursors to know which model and
// thinking level were last in effect, without replaying the whole chain
// itself.
type Cursors struct {
	Api           models.Api
	Provider      string
	Model         string
	ThinkingLevel models.ThinkingLevel
}

// Fold applies the §4.6 per-kind rules to a root-to-leaf ordered chain of
// entries, producing the message sequence a provider should see.
func Fold(chain []models.SessionEntry) []models.Message {
	msgs, _ := FoldWithCursors(chain)
	return msgs
}

// FoldWithEntryIDs is Fold, but also returns the originating entry ID for
// each output message, parallel by index — the shape
// compaction.Compactor.Run needs to record exactly which entry a fresh
// compaction pass may discard up to.
func FoldWithEntryIDs(chain []models.SessionEntry) ([]models.Message, []string) {
	var msgs []models.Message
	var ids []string

	for _, e := range chain {
		switch e.EntryType {
		case models.EntryMessage:
			if e.Message != nil {
				msgs = append(msgs, *e.Message)
				ids = append(ids, e.ID)
			}
		case models.EntryCompaction:
			if e.Compaction != nil {
				msgs = []models.Message{compactionSummaryMessage(e)}
				ids = []string{e.ID}
			}
		case models.EntryBranchSummary:
			if e.BranchSummary != nil {
				msgs = append(msgs, branchSummaryMessage(e))
				ids = append(ids, e.ID)
			}
		}
	}
	return msgs, ids
}

// FoldWithCursors is Fold plus the final running cursor values.
//
// Per-kind rules:
//   - Header, Label, SessionInfo, Custom: ignored, never produce a message.
//   - Message: appended to the output in order.
//   - ThinkingLevelChange, ModelChange: update the running cursors; produce
//     no message.
//   - Compaction: clears every message accumulated so far and replaces it
//     with one synthetic summary message. Sound because a Compaction entry
//     is always appended as a descendant of everything it summarizes, so
//     "everything accumulated so far in this walk" and "everything at or
//     before FirstKeptEntryID" coincide for any entry reachable from it.
//   - BranchSummary: appends one synthetic message noting the divergence,
//     without clearing prior output.
func FoldWithCursors(chain []models.SessionEntry) ([]models.Message, Cursors) {
	var out []models.Message
	var cur Cursors

	for _, e := range chain {
		switch e.EntryType {
		case models.EntryHeader, models.EntryLabel, models.EntryInfo, models.EntryCustom:
			// ignored during context reconstruction
		case models.EntryMessage:
			if e.Message != nil {
				out = append(out, *e.Message)
			}
		case models.EntryThinkingLevelChange:
			if e.ThinkingLevelChange != nil {
				cur.ThinkingLevel = e.ThinkingLevelChange.Level
			}
		case models.EntryModelChange:
			if e.ModelChange != nil {
				cur.Api = e.ModelChange.Api
				cur.Provider = e.ModelChange.Provider
				cur.Model = e.ModelChange.Model
			}
		case models.EntryCompaction:
			if e.Compaction != nil {
				out = []models.Message{compactionSummaryMessage(e)}
			}
		case models.EntryBranchSummary:
			if e.BranchSummary != nil {
				out = append(out, branchSummaryMessage(e))
			}
		}
	}
	return out, cur
}

func compactionSummaryMessage(e models.SessionEntry) models.Message {
	return models.NewUserMessage(e.ID+":compaction", fmt.Sprintf("[compacted history]\n%s", e.Compaction.Summary))
}

func branchSummaryMessage(e models.SessionEntry) models.Message {
	from := e.BranchSummary.FromEntryID
	return models.NewUserMessage(e.ID+":branch-summary", fmt.Sprintf("[branched from %s]\n%s", from, e.BranchSummary.Summary))
}

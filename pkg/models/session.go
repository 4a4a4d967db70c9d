package models

import (
	"encoding/json"
	"time"
)

// HeaderSchemaVersion is the minimum schema version a session file's first
// line must declare. Readers reject files below this version outright
// rather than attempt a best-effort upgrade.
const HeaderSchemaVersion = 3

// EntryKind discriminates a SessionEntry variant. The wire name is the
// camelCase "entryType" discriminator field.
type EntryKind string

const (
	EntryHeader              EntryKind = "header"
	EntryMessage             EntryKind = "message"
	EntryThinkingLevelChange EntryKind = "thinkingLevelChange"
	EntryModelChange         EntryKind = "modelChange"
	EntryCompaction          EntryKind = "compaction"
	EntryBranchSummary       EntryKind = "branchSummary"
	EntryLabel               EntryKind = "label"
	EntryInfo                EntryKind = "sessionInfo"
	EntryCustom              EntryKind = "custom"
)

// HeaderData is the payload of the mandatory first-line Header entry.
type HeaderData struct {
	Version       int    `json:"version"`
	SessionID     string `json:"sessionId"`
	Cwd           string `json:"cwd,omitempty"`
	ParentSession string `json:"parentSession,omitempty"`
}

// ModelChangeData is the payload of a ModelChange entry.
type ModelChangeData struct {
	Api      Api    `json:"api"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ThinkingLevelChangeData is the payload of a ThinkingLevelChange entry.
type ThinkingLevelChangeData struct {
	Level ThinkingLevel `json:"level"`
}

// CompactionData is the payload of a Compaction entry: a structured summary
// that replaces everything at or before FirstKeptEntryID when the context
// is reconstructed.
type CompactionData struct {
	Summary          string `json:"summary"`
	FirstKeptEntryID string `json:"firstKeptEntryId"`
	TokensBefore     int    `json:"tokensBefore"`
}

// BranchSummaryData is the payload of a BranchSummary entry: a synthetic
// note folded into context when a branch point is crossed during
// reconstruction, so the model sees that history diverged here.
type BranchSummaryData struct {
	Summary      string `json:"summary"`
	FromEntryID  string `json:"fromEntryId"`
	BranchPoint  string `json:"branchPoint,omitempty"`
}

// LabelData is the payload of a Label entry: a host-assigned name for the
// current leaf, used to navigate the branch tree.
type LabelData struct {
	Name string `json:"name"`
}

// SessionInfoData is the payload of a SessionInfo entry: free-form metadata
// about the session (title, tags) that never affects context reconstruction.
type SessionInfoData struct {
	Title string         `json:"title,omitempty"`
	Tags  []string       `json:"tags,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// CustomData is the payload of a Custom entry: an opaque host record,
// preserved verbatim across reads, ignored during context reconstruction.
type CustomData struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// SessionEntry is one line of a session file: a node in the parent-id
// forest. ID is unique within the file; ParentID is empty only for the
// Header entry. Every entry kind other than Header, Message, and
// Compaction is ignored or only updates a running cursor during context
// reconstruction — see Reconstruct.
type SessionEntry struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"`
	EntryType EntryKind `json:"entryType"`
	Timestamp time.Time `json:"timestamp"`

	Header              *HeaderData              `json:"header,omitempty"`
	Message              *Message                `json:"message,omitempty"`
	ThinkingLevelChange  *ThinkingLevelChangeData `json:"thinkingLevelChange,omitempty"`
	ModelChange          *ModelChangeData         `json:"modelChange,omitempty"`
	Compaction           *CompactionData          `json:"compaction,omitempty"`
	BranchSummary        *BranchSummaryData       `json:"branchSummary,omitempty"`
	Label                *LabelData               `json:"label,omitempty"`
	SessionInfo          *SessionInfoData         `json:"sessionInfo,omitempty"`
	Custom               *CustomData              `json:"custom,omitempty"`

	// rawUnknown preserves the JSON object verbatim when EntryType names a
	// kind this build doesn't recognize, so forward-incompatible entries
	// round-trip through a read-modify-append cycle unchanged.
	rawUnknown json.RawMessage
}

// UnmarshalJSON preserves unrecognized entry types verbatim instead of
// silently dropping their payload.
func (e *SessionEntry) UnmarshalJSON(data []byte) error {
	type alias SessionEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = SessionEntry(a)
	switch e.EntryType {
	case EntryHeader, EntryMessage, EntryThinkingLevelChange, EntryModelChange,
		EntryCompaction, EntryBranchSummary, EntryLabel, EntryInfo, EntryCustom:
		// recognized, fields already populated by the alias unmarshal
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		e.rawUnknown = raw
	}
	return nil
}

// MarshalJSON re-emits the original bytes for an unrecognized entry type.
func (e SessionEntry) MarshalJSON() ([]byte, error) {
	if e.rawUnknown != nil {
		return e.rawUnknown, nil
	}
	type alias SessionEntry
	return json.Marshal(alias(e))
}

// NewHeaderEntry builds the mandatory first-line Header entry for a new
// session file.
func NewHeaderEntry(id, sessionID, cwd, parentSession string) SessionEntry {
	return SessionEntry{
		ID:        id,
		EntryType: EntryHeader,
		Timestamp: time.Now(),
		Header: &HeaderData{
			Version:       HeaderSchemaVersion,
			SessionID:     sessionID,
			Cwd:           cwd,
			ParentSession: parentSession,
		},
	}
}

// NewMessageEntry builds a Message entry. ParentID is set by the store at
// append time, not here.
func NewMessageEntry(id string, msg Message) SessionEntry {
	return SessionEntry{ID: id, EntryType: EntryMessage, Timestamp: time.Now(), Message: &msg}
}

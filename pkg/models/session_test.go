package models

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

// decodeEncode round-trips one SessionEntry through JSON and returns the
// result, normalizing Timestamp to the input's value since JSON round-trips
// through RFC3339 and would otherwise lose sub-nanosecond precision.
func decodeEncode(t *testing.T, entry SessionEntry) SessionEntry {
	t.Helper()
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got SessionEntry
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return got
}

func TestSessionEntryRoundTripsEveryKind(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries := map[EntryKind]SessionEntry{
		EntryHeader: {
			ID: "e1", EntryType: EntryHeader, Timestamp: ts,
			Header: &HeaderData{Version: HeaderSchemaVersion, SessionID: "s1", Cwd: "/tmp"},
		},
		EntryMessage: {
			ID: "e2", ParentID: "e1", EntryType: EntryMessage, Timestamp: ts,
			Message: &Message{Kind: MessageUser, ID: "m1", Content: []ContentBlock{TextBlock("hi")}, Timestamp: ts},
		},
		EntryThinkingLevelChange: {
			ID: "e3", ParentID: "e2", EntryType: EntryThinkingLevelChange, Timestamp: ts,
			ThinkingLevelChange: &ThinkingLevelChangeData{Level: ThinkingHigh},
		},
		EntryModelChange: {
			ID: "e4", ParentID: "e3", EntryType: EntryModelChange, Timestamp: ts,
			ModelChange: &ModelChangeData{Api: ApiAnthropicMessages, Provider: "anthropic", Model: "claude"},
		},
		EntryCompaction: {
			ID: "e5", ParentID: "e4", EntryType: EntryCompaction, Timestamp: ts,
			Compaction: &CompactionData{Summary: "summary text", FirstKeptEntryID: "e3", TokensBefore: 24000},
		},
		EntryBranchSummary: {
			ID: "e6", ParentID: "e5", EntryType: EntryBranchSummary, Timestamp: ts,
			BranchSummary: &BranchSummaryData{Summary: "branched here", FromEntryID: "e2", BranchPoint: "e2"},
		},
		EntryLabel: {
			ID: "e7", ParentID: "e6", EntryType: EntryLabel, Timestamp: ts,
			Label: &LabelData{Name: "checkpoint"},
		},
		EntryInfo: {
			ID: "e8", ParentID: "e7", EntryType: EntryInfo, Timestamp: ts,
			SessionInfo: &SessionInfoData{Title: "a session", Tags: []string{"x", "y"}},
		},
		EntryCustom: {
			ID: "e9", ParentID: "e8", EntryType: EntryCustom, Timestamp: ts,
			Custom: &CustomData{Type: "note", Data: map[string]any{"k": "v"}},
		},
	}

	for kind, entry := range entries {
		t.Run(string(kind), func(t *testing.T) {
			got := decodeEncode(t, entry)
			if !reflect.DeepEqual(got, entry) {
				t.Fatalf("decode(encode(entry)) != entry\ngot:  %#v\nwant: %#v", got, entry)
			}
		})
	}
}

// An entry whose EntryType this build doesn't recognize round-trips
// byte-for-byte via rawUnknown rather than losing its payload.
func TestSessionEntryUnrecognizedKindPreservedVerbatim(t *testing.T) {
	input := []byte(`{"id":"e1","entryType":"futureKind","timestamp":"2026-01-02T03:04:05Z","futurePayload":{"x":1}}`)

	var entry SessionEntry
	if err := json.Unmarshal(input, &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var gotRaw, wantRaw map[string]any
	if err := json.Unmarshal(out, &gotRaw); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if err := json.Unmarshal(input, &wantRaw); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if !reflect.DeepEqual(gotRaw, wantRaw) {
		t.Fatalf("unrecognized entry not preserved verbatim\ngot:  %s\nwant: %s", out, input)
	}
}

func TestNewHeaderEntryFields(t *testing.T) {
	e := NewHeaderEntry("id1", "sess1", "/work", "parent1")
	if e.EntryType != EntryHeader {
		t.Fatalf("EntryType = %q, want header", e.EntryType)
	}
	if e.Header.Version != HeaderSchemaVersion {
		t.Fatalf("Version = %d, want %d", e.Header.Version, HeaderSchemaVersion)
	}
	if e.Header.SessionID != "sess1" || e.Header.Cwd != "/work" || e.Header.ParentSession != "parent1" {
		t.Fatalf("unexpected header payload: %#v", e.Header)
	}
}

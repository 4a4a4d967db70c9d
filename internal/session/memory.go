// Package session implements the append-only, branch-capable session store
// described in spec §4.6/§6.1: a single growable forest of SessionEntry
// nodes linked by ParentID, a mutable leaf cursor that Append advances and
// Branch can reassign without writing, and leaf-to-root/root-to-leaf context
// reconstruction with the per-kind fold rules in reconstruct.go.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/runtime/pkg/models"
)

// ErrEntryNotFound is returned when a lookup or Branch names an entry ID
// that was never appended.
var ErrEntryNotFound = errors.New("session: entry not found")

// MemoryStore is the in-memory twin of the file-backed Store: the same
// append/branch/reconstruct contract without durability, used standalone
// for tests and as the reconstruction engine Store wraps its file I/O
// around. Grounded on the teacher's internal/sessions/memory.go
// mutex-guarded, deep-clone-on-read discipline.
type MemoryStore struct {
	mu      sync.Mutex
	header  models.SessionEntry
	entries map[string]models.SessionEntry
	order   []string
	leaf    string
}

// NewMemoryStore creates a fresh store with its mandatory Header entry
// already written and the leaf pointed at it.
func NewMemoryStore(sessionID, cwd, parentSession string) *MemoryStore {
	header := models.NewHeaderEntry(uuid.NewString(), sessionID, cwd, parentSession)
	return &MemoryStore{
		header:  header,
		entries: map[string]models.SessionEntry{header.ID: header},
		order:   []string{header.ID},
		leaf:    header.ID,
	}
}

// Header returns the session's immutable Header entry.
func (s *MemoryStore) Header() models.SessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

// Append implements agentloop.SessionStore: wraps msg as a new entry, child
// of the current leaf, and advances the leaf to it.
func (s *MemoryStore) Append(ctx context.Context, msg models.AgentMessage) error {
	entry, err := entryFromAgentMessage(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ParentID = s.leaf
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	s.leaf = entry.ID
	return nil
}

// AppendEntry persists a raw entry the agent loop never produces through
// Append directly — ThinkingLevelChange, ModelChange, Compaction, Label, and
// BranchSummary all go through here. Returns the entry's assigned ID.
func (s *MemoryStore) AppendEntry(entry models.SessionEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ParentID = s.leaf
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	s.leaf = entry.ID
	return entry.ID, nil
}

// Branch reassigns the leaf cursor to an already-existing entry without
// writing a new one — the §4.6 branch(to:) operation.
func (s *MemoryStore) Branch(to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[to]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, to)
	}
	s.leaf = to
	return nil
}

// Leaf returns the current leaf entry ID.
func (s *MemoryStore) Leaf() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaf
}

// Reconstruct implements agentloop.SessionStore: walks the leaf-to-root
// parent chain, then folds it root-to-leaf per the §4.6 rules.
func (s *MemoryStore) Reconstruct(ctx context.Context) ([]models.Message, error) {
	s.mu.Lock()
	chain, err := s.chainToRoot(s.leaf)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return Fold(chain), nil
}

// Entries returns every stored entry in insertion order — used by the
// branch-tree-listing supplemented feature.
func (s *MemoryStore) Entries() []models.SessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SessionEntry, len(s.order))
	for i, id := range s.order {
		out[i] = s.entries[id]
	}
	return out
}

// chainToRoot returns entries from root to leaf (inclusive) by following
// ParentID back from id. Caller must hold s.mu.
func (s *MemoryStore) chainToRoot(id string) ([]models.SessionEntry, error) {
	var reversed []models.SessionEntry
	cur := id
	seen := map[string]bool{}
	for cur != "" {
		if seen[cur] {
			return nil, fmt.Errorf("session: cycle detected at entry %s", cur)
		}
		seen[cur] = true
		entry, ok := s.entries[cur]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, cur)
		}
		reversed = append(reversed, entry)
		cur = entry.ParentID
	}
	chain := make([]models.SessionEntry, len(reversed))
	for i, e := range reversed {
		chain[len(reversed)-1-i] = e
	}
	return chain, nil
}

// entryFromAgentMessage converts a wrapped or custom AgentMessage into the
// SessionEntry shape Append/AppendEntry persist. ParentID is left empty;
// the caller fills it in from the current leaf under lock.
func entryFromAgentMessage(msg models.AgentMessage) (models.SessionEntry, error) {
	id := uuid.NewString()
	if msg.IsMessage() {
		return models.NewMessageEntry(id, *msg.Message), nil
	}
	return models.SessionEntry{
		ID:        id,
		EntryType: models.EntryCustom,
		Timestamp: time.Now(),
		Custom:    &models.CustomData{Type: msg.CustomType, Data: msg.CustomData},
	}, nil
}

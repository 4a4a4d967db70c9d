package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/runtime/internal/sessionindex"
	"github.com/agentcore/runtime/pkg/models"
)

// Store is the durable, append-only file-backed session store: one
// SessionEntry per line of newline-delimited JSON (§6.1), flushed and
// fsynced before every Append/AppendEntry returns, so a line observed on
// disk is guaranteed to survive a crash. The in-memory forest MemoryStore
// already builds for reconstruction is reused here verbatim; Store adds
// only the file I/O around it, mirroring the teacher's own split between a
// pure in-memory store and a persistence layer built on top of the same
// data shape.
type Store struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
	mem  *MemoryStore
	idx  *sessionindex.Index
}

// Open opens the session file at path, creating it with a fresh Header
// entry if it does not exist, or replaying an existing file into the
// in-memory forest with the leaf defaulting to the last entry appended.
func Open(path, sessionID, cwd, parentSession string) (*Store, error) {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}

	s := &Store{path: path, file: f, w: bufio.NewWriter(f)}

	if fresh {
		header := models.NewHeaderEntry(uuid.NewString(), sessionID, cwd, parentSession)
		s.mem = &MemoryStore{
			header:  header,
			entries: map[string]models.SessionEntry{header.ID: header},
			order:   []string{header.ID},
			leaf:    header.ID,
		}
		if err := s.writeEntry(header); err != nil {
			f.Close()
			return nil, err
		}
		return s, nil
	}

	mem, err := replay(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.mem = mem
	return s, nil
}

// WithIndex attaches a derived sessionindex.Index that every subsequent
// Append/AppendEntry/Branch call keeps in sync, and immediately upserts
// the store's current state into it. A Store with no attached index
// behaves exactly as before -- the index is a cache, never a dependency
// of the file store's own correctness.
func (s *Store) WithIndex(idx *sessionindex.Index) *Store {
	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
	s.syncIndex()
	return s
}

// syncIndex upserts the current header/leaf/cwd into the attached index,
// if any. Index failures are swallowed to stderr rather than surfaced:
// the append-only file remains authoritative, so a stalled or unreachable
// index must never block or fail a session write.
func (s *Store) syncIndex() {
	s.mu.Lock()
	idx := s.idx
	if idx == nil {
		s.mu.Unlock()
		return
	}
	rec := sessionindex.Record{
		ID:          s.mem.header.Header.SessionID,
		Path:        s.path,
		LeafEntryID: s.mem.leaf,
		Cwd:         s.mem.header.Header.Cwd,
	}
	s.mu.Unlock()
	if err := idx.Upsert(context.Background(), rec); err != nil {
		fmt.Fprintf(os.Stderr, "session: index sync for %s: %v\n", rec.ID, err)
	}
}

// replay decodes every line of an existing session file into a MemoryStore,
// leaving the leaf at the last entry encountered.
func replay(f *os.File) (*MemoryStore, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("session: seek to start: %w", err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	mem := &MemoryStore{entries: map[string]models.SessionEntry{}}
	sawHeader := false

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.SessionEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("session: decode entry: %w", err)
		}
		if !sawHeader {
			if entry.EntryType != models.EntryHeader {
				return nil, fmt.Errorf("session: first line is not a Header entry")
			}
			mem.header = entry
			sawHeader = true
		}
		mem.entries[entry.ID] = entry
		mem.order = append(mem.order, entry.ID)
		mem.leaf = entry.ID
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("session: empty session file")
	}
	return mem, nil
}

// writeEntry marshals entry as one JSON line, flushing and fsyncing before
// returning. The file was opened with O_APPEND, so the write always lands
// at the current end of file regardless of any prior read's seek position.
func (s *Store) writeEntry(entry models.SessionEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("session: marshal entry: %w", err)
	}
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("session: write entry: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("session: write newline: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("session: flush: %w", err)
	}
	return s.file.Sync()
}

// Append implements agentloop.SessionStore.
func (s *Store) Append(ctx context.Context, msg models.AgentMessage) error {
	entry, err := entryFromAgentMessage(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	entry.ParentID = s.mem.leaf
	if err := s.writeEntry(entry); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mem.entries[entry.ID] = entry
	s.mem.order = append(s.mem.order, entry.ID)
	s.mem.leaf = entry.ID
	s.mu.Unlock()
	s.syncIndex()
	return nil
}

// AppendEntry persists a raw entry (ThinkingLevelChange, ModelChange,
// Compaction, Label, BranchSummary) and returns its assigned ID.
func (s *Store) AppendEntry(entry models.SessionEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.mu.Lock()
	entry.ParentID = s.mem.leaf
	if err := s.writeEntry(entry); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.mem.entries[entry.ID] = entry
	s.mem.order = append(s.mem.order, entry.ID)
	s.mem.leaf = entry.ID
	s.mu.Unlock()
	s.syncIndex()
	return entry.ID, nil
}

// Branch reassigns the leaf cursor without writing a new entry — the §4.6
// branch(to:) operation. to must already be present in the file.
func (s *Store) Branch(to string) error {
	s.mu.Lock()
	if _, ok := s.mem.entries[to]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, to)
	}
	s.mem.leaf = to
	s.mu.Unlock()
	s.syncIndex()
	return nil
}

// Leaf returns the current leaf entry ID.
func (s *Store) Leaf() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.leaf
}

// Reconstruct implements agentloop.SessionStore.
func (s *Store) Reconstruct(ctx context.Context) ([]models.Message, error) {
	s.mu.Lock()
	chain, err := s.mem.chainToRoot(s.mem.leaf)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return Fold(chain), nil
}

// ReconstructWithEntryIDs is Reconstruct plus the originating entry ID of
// each message, for compaction.Compactor.Run.
func (s *Store) ReconstructWithEntryIDs(ctx context.Context) ([]models.Message, []string, error) {
	s.mu.Lock()
	chain, err := s.mem.chainToRoot(s.mem.leaf)
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	msgs, ids := FoldWithEntryIDs(chain)
	return msgs, ids, nil
}

// Entries returns every stored entry in file order, for the branch-tree
// listing supplemented feature.
func (s *Store) Entries() []models.SessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SessionEntry, len(s.mem.order))
	for i, id := range s.mem.order {
		out[i] = s.mem.entries[id]
	}
	return out
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("session: flush on close: %w", err)
	}
	return s.file.Close()
}

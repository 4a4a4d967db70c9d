// Package apikey implements spec §6.2: storage and lookup of provider
// credentials. Records live in a flat JSON array on disk — no JWT, no
// session cookie, no user table — because the consumer of a resolved
// credential is an outbound HTTP client talking to a model provider, not
// an inbound auth check on this process.
package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrNoCredential is returned when no record and no environment
	// variable can satisfy a requested provider.
	ErrNoCredential = errors.New("apikey: no credential available for provider")
	// ErrRecordNotFound is returned by Select/Remove when no record
	// matches the given provider and name.
	ErrRecordNotFound = errors.New("apikey: record not found")
)

// Record is one stored credential, exactly the shape spec §6.2 names.
type Record struct {
	Provider   string `json:"provider"`
	Name       string `json:"name"`
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url,omitempty"`
	IsSelected bool   `json:"is_selected"`
}

// Credential is what a Resolver hands back: enough to authenticate and
// address a request, plus where it came from (useful for diagnostics —
// "why did this request use this key").
type Credential struct {
	APIKey  string
	BaseURL string
	Source  string
}

// envVarFor maps a provider name to the environment variable spec §6.2
// names as its final fallback.
func envVarFor(provider string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "anthropic":
		return "ANTHROPIC_API_KEY", true
	case "openai":
		return "OPENAI_API_KEY", true
	case "google":
		return "GOOGLE_API_KEY", true
	case "azure-openai", "azure_openai", "azure":
		return "AZURE_OPENAI_API_KEY", true
	default:
		return "", false
	}
}

// Store holds API-key records loaded from a JSON array file and
// guarantees at most one selected record per provider. Mutex-guarded per
// spec §5's "mutex-guarded ... API-key store" concurrency requirement.
type Store struct {
	mu      sync.RWMutex
	path    string
	records []Record
}

// Open loads records from path, or starts an empty store if the file
// does not yet exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apikey: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("apikey: decode %s: %w", path, err)
	}
	s.records = records
	return s, nil
}

// Records returns a copy of the currently loaded records.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Put inserts or replaces the record identified by (Provider, Name). If
// rec.IsSelected is true, every other record for the same provider is
// unselected, preserving the "at most one selected per provider"
// invariant.
func (s *Store) Put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.records {
		if s.records[i].Provider == rec.Provider && s.records[i].Name == rec.Name {
			s.records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append(s.records, rec)
	}
	if rec.IsSelected {
		s.unselectOthersLocked(rec.Provider, rec.Name)
	}
	return s.saveLocked()
}

// Select marks the named record as the selected one for its provider,
// unselecting any other record for that provider.
func (s *Store) Select(provider, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.records {
		if s.records[i].Provider == provider && s.records[i].Name == name {
			s.records[i].IsSelected = true
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, provider, name)
	}
	s.unselectOthersLocked(provider, name)
	return s.saveLocked()
}

// Remove deletes the named record.
func (s *Store) Remove(provider, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.records[:0:0]
	found := false
	for _, r := range s.records {
		if r.Provider == provider && r.Name == name {
			found = true
			continue
		}
		out = append(out, r)
	}
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, provider, name)
	}
	s.records = out
	return s.saveLocked()
}

func (s *Store) unselectOthersLocked(provider, keepName string) {
	for i := range s.records {
		if s.records[i].Provider == provider && s.records[i].Name != keepName {
			s.records[i].IsSelected = false
		}
	}
}

func (s *Store) saveLocked() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("apikey: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("apikey: mkdir %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("apikey: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("apikey: rename %s: %w", tmp, err)
	}
	return nil
}

// Resolver resolves a provider name to a usable Credential. Context is
// accepted so implementations backed by a network round trip (an OAuth2
// token refresh, say) share the same contract as the purely local one
// below.
type Resolver interface {
	Resolve(ctx context.Context, provider string) (Credential, error)
}

// Environ abstracts environment-variable lookup so tests don't depend on
// process-global state.
type Environ func(key string) string

// StaticResolver implements spec §6.2's lookup order directly against a
// Store: a selected record for the requested provider, then any other
// selected record (treated as an OpenAI-compatible gateway fallback),
// then the provider's environment variable.
type StaticResolver struct {
	store   *Store
	environ Environ
}

// NewStaticResolver builds a StaticResolver over store. A nil environ
// defaults to os.Getenv.
func NewStaticResolver(store *Store, environ Environ) *StaticResolver {
	if environ == nil {
		environ = os.Getenv
	}
	return &StaticResolver{store: store, environ: environ}
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(ctx context.Context, provider string) (Credential, error) {
	records := r.store.Records()

	for _, rec := range records {
		if rec.Provider == provider && rec.IsSelected {
			return Credential{APIKey: rec.APIKey, BaseURL: rec.BaseURL, Source: "store:selected"}, nil
		}
	}
	for _, rec := range records {
		if rec.Provider != provider && rec.IsSelected {
			return Credential{APIKey: rec.APIKey, BaseURL: rec.BaseURL, Source: "store:fallback:" + rec.Provider}, nil
		}
	}
	if envVar, ok := envVarFor(provider); ok {
		if val := r.environ(envVar); strings.TrimSpace(val) != "" {
			return Credential{APIKey: val, Source: "env:" + envVar}, nil
		}
	}
	return Credential{}, fmt.Errorf("%w: %s", ErrNoCredential, provider)
}

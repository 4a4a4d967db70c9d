// Package modelcatalog provides a lookup table of known LLM models and
// their capabilities, keyed by the canonical models.LLMModel the
// provider layer and compaction trigger both consume.
package modelcatalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/agentcore/runtime/pkg/models"
)

// geminiApi is the wire Api value internal/provider's GeminiProvider
// reports; modelcatalog and the provider package agree on it by
// convention rather than a shared constant, since it sits outside
// spec.md's three required APIs.
const geminiApi = models.Api("google-generative-language")

// Entry augments a models.LLMModel with catalog-only metadata: alternate
// names, lifecycle status, and the descriptive copy a model picker would
// show a user.
type Entry struct {
	Model       models.LLMModel
	Aliases     []string
	Deprecated  bool
	ReplacedBy  string
	ReleaseDate string
	Description string
}

// HasModality reports whether the entry's model declares the given
// modality (e.g. "image", "audio").
func (e *Entry) HasModality(modality string) bool {
	for _, m := range e.Model.Modalities {
		if m == modality {
			return true
		}
	}
	return false
}

// Catalog manages a collection of model entries, indexed by ID and by
// alias.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	aliases map[string]string
}

// NewCatalog returns a Catalog pre-populated with the built-in models
// for every provider this runtime's internal/provider package drives.
func NewCatalog() *Catalog {
	c := &Catalog{
		entries: make(map[string]*Entry),
		aliases: make(map[string]string),
	}
	c.registerBuiltinModels()
	return c
}

// Register adds or replaces an entry in the catalog.
func (c *Catalog) Register(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Model.ID] = entry
	for _, alias := range entry.Aliases {
		c.aliases[strings.ToLower(alias)] = entry.Model.ID
	}
}

// Get retrieves an entry by ID or alias.
func (c *Catalog) Get(id string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.entries[id]; ok {
		return entry, true
	}
	if realID, ok := c.aliases[strings.ToLower(id)]; ok {
		return c.entries[realID], true
	}
	return nil, false
}

// Filter narrows a List call.
type Filter struct {
	// Apis restricts results to the given wire protocols.
	Apis []models.Api
	// Providers restricts results to the given provider names (e.g.
	// "anthropic", "openai", "google").
	Providers []string
	// RequiredModalities lists modalities every result must declare.
	RequiredModalities []string
	// RequireReasoning, when true, excludes models that don't report
	// extended-reasoning support.
	RequireReasoning bool
	// MinContextWindow excludes models with a smaller window.
	MinContextWindow int
	// IncludeDeprecated includes deprecated models when true.
	IncludeDeprecated bool
}

// Matches reports whether entry satisfies f.
func (f *Filter) Matches(entry *Entry) bool {
	if f == nil {
		return true
	}
	if len(f.Apis) > 0 && !containsApi(f.Apis, entry.Model.Api) {
		return false
	}
	if len(f.Providers) > 0 && !containsString(f.Providers, entry.Model.Provider) {
		return false
	}
	for _, m := range f.RequiredModalities {
		if !entry.HasModality(m) {
			return false
		}
	}
	if f.RequireReasoning && !entry.Model.Reasoning {
		return false
	}
	if f.MinContextWindow > 0 && entry.Model.ContextWindow < f.MinContextWindow {
		return false
	}
	if !f.IncludeDeprecated && entry.Deprecated {
		return false
	}
	return true
}

func containsApi(apis []models.Api, want models.Api) bool {
	for _, a := range apis {
		if a == want {
			return true
		}
	}
	return false
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// List returns all entries matching filter, sorted by provider then
// name. A nil filter returns every entry.
func (c *Catalog) List(filter *Filter) []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Entry
	for _, entry := range c.entries {
		if filter.Matches(entry) {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Model.Provider != result[j].Model.Provider {
			return result[i].Model.Provider < result[j].Model.Provider
		}
		return result[i].Model.Name < result[j].Model.Name
	})
	return result
}

// ListByProvider returns every entry for the given provider name.
func (c *Catalog) ListByProvider(provider string) []*Entry {
	return c.List(&Filter{Providers: []string{provider}})
}

// ListByApi returns every entry driven through the given wire protocol.
func (c *Catalog) ListByApi(api models.Api) []*Entry {
	return c.List(&Filter{Apis: []models.Api{api}})
}

func (c *Catalog) registerBuiltinModels() {
	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "claude-opus-4-5-20251101",
			Name:          "Claude Opus 4.5",
			Api:           models.ApiAnthropicMessages,
			Provider:      "anthropic",
			Modalities:    []string{"text", "image", "pdf"},
			Reasoning:     true,
			Cost:          models.Cost{Input: 15.0, Output: 75.0},
			ContextWindow: 200000,
			MaxTokens:     32000,
		},
		Aliases:     []string{"opus", "claude-opus-4"},
		ReleaseDate: "2025-11-01",
	})

	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "claude-3-5-sonnet-latest",
			Name:          "Claude 3.5 Sonnet",
			Api:           models.ApiAnthropicMessages,
			Provider:      "anthropic",
			Modalities:    []string{"text", "image", "pdf"},
			Cost:          models.Cost{Input: 3.0, Output: 15.0},
			ContextWindow: 200000,
			MaxTokens:     8192,
		},
		Aliases:     []string{"sonnet", "claude-3-5-sonnet"},
		ReleaseDate: "2024-10-22",
	})

	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "claude-3-5-haiku-latest",
			Name:          "Claude 3.5 Haiku",
			Api:           models.ApiAnthropicMessages,
			Provider:      "anthropic",
			Modalities:    []string{"text", "image"},
			Cost:          models.Cost{Input: 0.8, Output: 4.0},
			ContextWindow: 200000,
			MaxTokens:     8192,
		},
		Aliases:     []string{"haiku", "claude-3-5-haiku"},
		ReleaseDate: "2024-11-04",
	})

	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "gpt-4o",
			Name:          "GPT-4o",
			Api:           models.ApiOpenAIChatCompletion,
			Provider:      "openai",
			Modalities:    []string{"text", "image", "audio"},
			Cost:          models.Cost{Input: 2.5, Output: 10.0},
			ContextWindow: 128000,
			MaxTokens:     16384,
		},
		Aliases:     []string{"gpt-4o-2024-11-20"},
		ReleaseDate: "2024-05-13",
	})

	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "gpt-4o-mini",
			Name:          "GPT-4o Mini",
			Api:           models.ApiOpenAIChatCompletion,
			Provider:      "openai",
			Modalities:    []string{"text", "image"},
			Cost:          models.Cost{Input: 0.15, Output: 0.6},
			ContextWindow: 128000,
			MaxTokens:     16384,
		},
		Aliases:     []string{"gpt-4o-mini-2024-07-18"},
		ReleaseDate: "2024-07-18",
	})

	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "o1",
			Name:          "o1",
			Api:           models.ApiOpenAIResponses,
			Provider:      "openai",
			Modalities:    []string{"text", "image"},
			Reasoning:     true,
			Cost:          models.Cost{Input: 15.0, Output: 60.0},
			ContextWindow: 200000,
			MaxTokens:     100000,
		},
		Aliases:     []string{"o1-2024-12-17"},
		ReleaseDate: "2024-12-17",
	})

	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "o3-mini",
			Name:          "o3-mini",
			Api:           models.ApiOpenAIResponses,
			Provider:      "openai",
			Modalities:    []string{"text"},
			Reasoning:     true,
			Cost:          models.Cost{Input: 1.1, Output: 4.4},
			ContextWindow: 200000,
			MaxTokens:     100000,
		},
		Aliases:     []string{"o3-mini-2025-01-31"},
		ReleaseDate: "2025-01-31",
	})

	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "gemini-2.0-flash-exp",
			Name:          "Gemini 2.0 Flash",
			Api:           geminiApi,
			Provider:      "google",
			Modalities:    []string{"text", "image", "audio", "video"},
			Cost:          models.Cost{Input: 0.0, Output: 0.0},
			ContextWindow: 1048576,
			MaxTokens:     8192,
		},
		Aliases:     []string{"gemini-2.0-flash"},
		ReleaseDate: "2024-12-11",
	})

	c.Register(&Entry{
		Model: models.LLMModel{
			ID:            "gemini-1.5-pro-latest",
			Name:          "Gemini 1.5 Pro",
			Api:           geminiApi,
			Provider:      "google",
			Modalities:    []string{"text", "image", "audio", "video"},
			Cost:          models.Cost{Input: 1.25, Output: 5.0},
			ContextWindow: 2097152,
			MaxTokens:     8192,
		},
		Aliases:     []string{"gemini-1.5-pro"},
		ReleaseDate: "2024-05-14",
	})
}

// Default is the process-wide catalog, populated with the built-in
// models above. Mirrors the teacher's package-level DefaultCatalog
// convenience wrapper.
var Default = NewCatalog()

// Get retrieves an entry from Default.
func Get(id string) (*Entry, bool) { return Default.Get(id) }

// List returns entries from Default matching filter.
func List(filter *Filter) []*Entry { return Default.List(filter) }

// ListByProvider returns Default's entries for provider.
func ListByProvider(provider string) []*Entry { return Default.ListByProvider(provider) }

// ListByApi returns Default's entries for api.
func ListByApi(api models.Api) []*Entry { return Default.ListByApi(api) }

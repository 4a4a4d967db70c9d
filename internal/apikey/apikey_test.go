package apikey

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/oauth2"
)

func fixedEnviron(values map[string]string) Environ {
	return func(key string) string { return values[key] }
}

func TestStorePutEnforcesAtMostOneSelectedPerProvider(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "keys.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := s.Put(Record{Provider: "anthropic", Name: "work", APIKey: "k1", IsSelected: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(Record{Provider: "anthropic", Name: "personal", APIKey: "k2", IsSelected: true}); err != nil {
		t.Fatalf("put: %v", err)
	}

	selected := 0
	for _, r := range s.Records() {
		if r.Provider == "anthropic" && r.IsSelected {
			selected++
		}
	}
	if selected != 1 {
		t.Fatalf("expected exactly one selected anthropic record, got %d", selected)
	}
}

func TestStoreSelectUnselectsOthers(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "keys.json"))
	_ = s.Put(Record{Provider: "openai", Name: "a", APIKey: "ka", IsSelected: true})
	_ = s.Put(Record{Provider: "openai", Name: "b", APIKey: "kb"})

	if err := s.Select("openai", "b"); err != nil {
		t.Fatalf("select: %v", err)
	}
	for _, r := range s.Records() {
		if r.Name == "a" && r.IsSelected {
			t.Fatal("expected a to be unselected after selecting b")
		}
		if r.Name == "b" && !r.IsSelected {
			t.Fatal("expected b to be selected")
		}
	}
}

func TestStoreSelectUnknownRecordFails(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "keys.json"))
	if err := s.Select("openai", "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestStorePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	s, _ := Open(path)
	_ = s.Put(Record{Provider: "anthropic", Name: "work", APIKey: "sk-ant-1", IsSelected: true})

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	records := reopened.Records()
	if len(records) != 1 || records[0].APIKey != "sk-ant-1" {
		t.Fatalf("expected persisted record to reload, got %#v", records)
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "does-not-exist.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(s.Records()) != 0 {
		t.Fatal("expected an empty store for a missing file")
	}
}

func TestStaticResolverPrefersSelectedForRequestedProvider(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "keys.json"))
	_ = s.Put(Record{Provider: "anthropic", Name: "work", APIKey: "direct-key", IsSelected: true})
	_ = s.Put(Record{Provider: "openai", Name: "gateway", APIKey: "gateway-key", IsSelected: true})

	r := NewStaticResolver(s, fixedEnviron(nil))
	cred, err := r.Resolve(context.Background(), "anthropic")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.APIKey != "direct-key" || cred.Source != "store:selected" {
		t.Fatalf("expected the direct selected record, got %#v", cred)
	}
}

func TestStaticResolverFallsBackToAnyOtherSelected(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "keys.json"))
	_ = s.Put(Record{Provider: "openai", Name: "gateway", APIKey: "gateway-key", BaseURL: "https://gw.example.com", IsSelected: true})

	r := NewStaticResolver(s, fixedEnviron(nil))
	cred, err := r.Resolve(context.Background(), "anthropic")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.APIKey != "gateway-key" || cred.BaseURL != "https://gw.example.com" {
		t.Fatalf("expected the gateway fallback record, got %#v", cred)
	}
}

func TestStaticResolverFallsBackToEnvironmentVariable(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "keys.json"))

	r := NewStaticResolver(s, fixedEnviron(map[string]string{"ANTHROPIC_API_KEY": "env-key"}))
	cred, err := r.Resolve(context.Background(), "anthropic")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.APIKey != "env-key" || cred.Source != "env:ANTHROPIC_API_KEY" {
		t.Fatalf("expected the environment fallback, got %#v", cred)
	}
}

func TestStaticResolverNoCredentialAvailable(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "keys.json"))
	r := NewStaticResolver(s, fixedEnviron(nil))

	if _, err := r.Resolve(context.Background(), "anthropic"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

type staticTokenSource struct {
	token *oauth2.Token
	err   error
}

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestOAuth2ResolverReturnsAccessToken(t *testing.T) {
	r := NewOAuth2Resolver()
	r.Register("azure-openai", staticTokenSource{token: &oauth2.Token{AccessToken: "short-lived-token"}})

	cred, err := r.Resolve(context.Background(), "azure-openai")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.APIKey != "short-lived-token" {
		t.Fatalf("expected the access token, got %#v", cred)
	}
}

func TestOAuth2ResolverUnregisteredProvider(t *testing.T) {
	r := NewOAuth2Resolver()
	if _, err := r.Resolve(context.Background(), "anthropic"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestChainResolverFallsThroughToNextResolver(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "keys.json"))
	_ = s.Put(Record{Provider: "anthropic", Name: "work", APIKey: "store-key", IsSelected: true})

	oauthResolver := NewOAuth2Resolver()
	oauthResolver.Register("azure-openai", staticTokenSource{token: &oauth2.Token{AccessToken: "gateway-token"}})

	chain := NewChainResolver(oauthResolver, NewStaticResolver(s, fixedEnviron(nil)))

	cred, err := chain.Resolve(context.Background(), "azure-openai")
	if err != nil {
		t.Fatalf("resolve azure-openai: %v", err)
	}
	if cred.APIKey != "gateway-token" {
		t.Fatalf("expected oauth resolver to win for azure-openai, got %#v", cred)
	}

	cred, err = chain.Resolve(context.Background(), "anthropic")
	if err != nil {
		t.Fatalf("resolve anthropic: %v", err)
	}
	if cred.APIKey != "store-key" {
		t.Fatalf("expected static resolver fallback for anthropic, got %#v", cred)
	}
}

func TestChainResolverAllFail(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "keys.json"))
	chain := NewChainResolver(NewOAuth2Resolver(), NewStaticResolver(s, fixedEnviron(nil)))

	if _, err := chain.Resolve(context.Background(), "anthropic"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

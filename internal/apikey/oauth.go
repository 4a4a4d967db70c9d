package apikey

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// OAuth2Resolver resolves a provider to a short-lived access token
// instead of a static key — for providers fronting an OAuth gateway
// rather than handing out long-lived API keys. Registered per provider
// name against an oauth2.TokenSource, which already handles refresh.
type OAuth2Resolver struct {
	mu      sync.RWMutex
	sources map[string]oauth2.TokenSource
}

// NewOAuth2Resolver returns an empty OAuth2Resolver; register sources
// with Register before use.
func NewOAuth2Resolver() *OAuth2Resolver {
	return &OAuth2Resolver{sources: map[string]oauth2.TokenSource{}}
}

// Register associates a provider name with a token source. Safe to call
// again for the same provider to replace it.
func (r *OAuth2Resolver) Register(provider string, ts oauth2.TokenSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[strings.ToLower(strings.TrimSpace(provider))] = ts
}

// Resolve implements Resolver by pulling a fresh token from the
// registered source; TokenSource.Token() refreshes as needed.
func (r *OAuth2Resolver) Resolve(ctx context.Context, provider string) (Credential, error) {
	r.mu.RLock()
	ts, ok := r.sources[strings.ToLower(strings.TrimSpace(provider))]
	r.mu.RUnlock()
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrNoCredential, provider)
	}
	token, err := ts.Token()
	if err != nil {
		return Credential{}, fmt.Errorf("apikey: oauth2 token for %s: %w", provider, err)
	}
	if token.AccessToken == "" {
		return Credential{}, fmt.Errorf("%w: %s (empty access token)", ErrNoCredential, provider)
	}
	return Credential{APIKey: token.AccessToken, Source: "oauth2:" + provider}, nil
}

// ChainResolver tries each Resolver in order, returning the first
// successful Credential. Lets a runtime prefer an OAuth2-gateway
// resolver for providers that have one registered while still falling
// back to the static store-and-environment lookup spec §6.2 requires.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver builds a ChainResolver trying resolvers in order.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

// Resolve implements Resolver.
func (c *ChainResolver) Resolve(ctx context.Context, provider string) (Credential, error) {
	var lastErr error
	for _, r := range c.resolvers {
		cred, err := r.Resolve(ctx, provider)
		if err == nil {
			return cred, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", ErrNoCredential, provider)
	}
	return Credential{}, lastErr
}

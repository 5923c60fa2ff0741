package ai

import (
	"context"
	"fmt"
	"log/slog"
)

// Credentials is a tenant's resolved provider configuration.
type Credentials struct {
	Provider Provider
	APIKey   string
	BaseURL  string // only meaningful for ProviderCustom
	Model    string
}

// CredentialStore looks up a tenant's stored provider override. A (nil, nil)
// return means the tenant has no override and server defaults apply.
type CredentialStore interface {
	Lookup(ctx context.Context, ownerID string) (*Credentials, error)
}

// Defaults are the server-level fallbacks used when a tenant stores nothing.
type Defaults struct {
	Provider Provider
	// APIKeys holds the server's own keys per provider.
	APIKeys map[Provider]string
	// Models overrides the built-in default model per provider.
	Models map[Provider]string
}

var defaultModels = map[Provider]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderOpenRouter: "openai/gpt-4o-mini",
	ProviderFynorra:    "fynorra-chat",
	ProviderGemini:     "gemini-1.5-flash",
}

// Resolver turns (tenant, stored settings, server defaults) into a guarded
// Completer. Resolution happens once per request; after that the caller holds
// a single capability with no provider branching left.
type Resolver struct {
	store    CredentialStore
	defaults Defaults
	rps      float64
	log      *slog.Logger
}

func NewResolver(store CredentialStore, defaults Defaults, rps float64, log *slog.Logger) *Resolver {
	if defaults.Provider == "" {
		defaults.Provider = DefaultProvider
	}
	return &Resolver{store: store, defaults: defaults, rps: rps, log: log}
}

// Resolve returns the Completer for a tenant.
func (r *Resolver) Resolve(ctx context.Context, ownerID string) (Completer, error) {
	creds, err := r.store.Lookup(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("lookup credentials: %w", err)
	}
	if creds == nil {
		creds = &Credentials{Provider: r.defaults.Provider}
	}
	if !Known(creds.Provider) {
		return nil, fmt.Errorf("ai: unknown provider %q", creds.Provider)
	}

	if creds.APIKey == "" {
		creds.APIKey = r.defaults.APIKeys[creds.Provider]
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCredentials, creds.Provider)
	}
	if creds.Model == "" {
		creds.Model = r.defaults.Models[creds.Provider]
	}
	if creds.Model == "" {
		creds.Model = defaultModels[creds.Provider]
	}

	var inner Completer
	switch creds.Provider {
	case ProviderGemini:
		inner = &geminiCompleter{apiKey: creds.APIKey, model: creds.Model}
	case ProviderOpenAI:
		inner = newOpenAICompat(baseURLOpenAI, creds.APIKey, creds.Model)
	case ProviderOpenRouter:
		inner = newOpenAICompat(baseURLOpenRouter, creds.APIKey, creds.Model)
	case ProviderFynorra:
		inner = newOpenAICompat(baseURLFynorra, creds.APIKey, creds.Model)
	case ProviderCustom:
		if creds.BaseURL == "" {
			return nil, fmt.Errorf("ai: custom provider without base url")
		}
		inner = newOpenAICompat(creds.BaseURL, creds.APIKey, creds.Model)
	}

	return Guard(inner, string(creds.Provider), r.rps, r.log), nil
}

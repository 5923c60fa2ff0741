// Package ai resolves a tenant's provider preference into a single text
// completion capability. The retrieval engine only ever sees a Completer;
// provider branching happens exactly once, at resolution time.
package ai

import (
	"context"
	"errors"
)

// Provider identifies a model backend.
type Provider string

const (
	ProviderFynorra    Provider = "fynorra"
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
	ProviderCustom     Provider = "custom"
)

// DefaultProvider is used when a tenant has no stored preference.
const DefaultProvider = ProviderOpenRouter

// ErrNoCredentials is returned when neither the tenant nor the server config
// supplies an API key for the resolved provider.
var ErrNoCredentials = errors.New("ai: no credentials for provider")

// Completer produces a text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Known checks a provider tag from storage or request input.
func Known(p Provider) bool {
	switch p {
	case ProviderFynorra, ProviderOpenAI, ProviderOpenRouter, ProviderGemini, ProviderCustom:
		return true
	}
	return false
}

package ai

import (
	"errors"
	"fmt"

	"github.com/irancrypto/marketbot/internal/setup/config"
)

var (
	// ErrProviderNotConfigured indicates the operator forced a provider that
	// has no credential. This is a fatal configuration error.
	ErrProviderNotConfigured = errors.New("forced AI provider is not configured")
	// ErrNoProvidersAvailable indicates no provider has a credential.
	ErrNoProvidersAvailable = errors.New("no AI providers available")
	// ErrUnknownProvider indicates a provider name outside the known set.
	ErrUnknownProvider = errors.New("unknown AI provider")
)

// Provider is one of the known interchangeable completion upstreams.
// The declaration order is the failover priority order.
type Provider int

const (
	ProviderOpenAI Provider = iota
	ProviderOpenRouter
	ProviderGroq
)

// AllProviders returns the known providers in failover priority order.
func AllProviders() []Provider {
	return []Provider{ProviderOpenAI, ProviderOpenRouter, ProviderGroq}
}

// String returns the provider's configuration name.
func (p Provider) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderOpenRouter:
		return "openrouter"
	case ProviderGroq:
		return "groq"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// ParseProvider maps a configuration name to a known provider.
func ParseProvider(name string) (Provider, error) {
	for _, p := range AllProviders() {
		if p.String() == name {
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// ProviderConfig returns the credential block for a provider.
func ProviderConfig(cfg *config.AI, p Provider) config.ProviderConfig {
	switch p {
	case ProviderOpenAI:
		return cfg.OpenAI
	case ProviderOpenRouter:
		return cfg.OpenRouter
	case ProviderGroq:
		return cfg.Groq
	default:
		return config.ProviderConfig{}
	}
}

// Available reports whether a provider has a credential configured.
func Available(cfg *config.AI, p Provider) bool {
	return ProviderConfig(cfg, p).APIKey != ""
}

// SelectProvider picks the provider to use: the operator-forced primary when
// set (failing fast if its credential is missing), otherwise the first
// available provider in priority order.
func SelectProvider(cfg *config.AI) (Provider, error) {
	if cfg.ForcedProvider != "" {
		p, err := ParseProvider(cfg.ForcedProvider)
		if err != nil {
			return 0, err
		}

		if !Available(cfg, p) {
			return 0, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
		}

		return p, nil
	}

	for _, p := range AllProviders() {
		if Available(cfg, p) {
			return p, nil
		}
	}

	return 0, ErrNoProvidersAvailable
}

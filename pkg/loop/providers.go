package loop

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Provider selects which API surface the sampling loop talks to.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
	ProviderVertex    Provider = "vertex"
)

// ErrUnknownProvider is returned when a provider has no default model entry.
var ErrUnknownProvider = fmt.Errorf("unknown provider")

// defaultModels maps each supported provider to the model used when a request
// does not name one. Bedrock and Vertex use their own model identifier
// schemes, so only the direct Anthropic entry comes from the SDK constants.
var defaultModels = map[Provider]string{
	ProviderAnthropic: string(anthropic.ModelClaude3_5Sonnet20241022),
	ProviderBedrock:   "anthropic.claude-3-5-sonnet-20241022-v2:0",
	ProviderVertex:    "claude-3-5-sonnet-v2@20241022",
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	_, ok := defaultModels[p]
	return ok
}

// DefaultModel returns the default model name for a provider. Overrides, when
// non-nil, take precedence over the built-in table; an override entry with an
// empty value falls through to the built-in default.
func DefaultModel(p Provider, overrides map[Provider]string) (string, error) {
	if model, ok := overrides[p]; ok && model != "" {
		return model, nil
	}
	model, ok := defaultModels[p]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return model, nil
}

// Providers returns the supported provider identifiers.
func Providers() []Provider {
	return []Provider{ProviderAnthropic, ProviderBedrock, ProviderVertex}
}

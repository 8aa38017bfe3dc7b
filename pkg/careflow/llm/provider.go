package llm

import (
	"context"
	"fmt"
	"os"
)

// Provider names accepted by New.
const (
	ProviderClaudeCLI = "claude-cli"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// New builds the Service named by provider. Gemini reads GEMINI_API_KEY or
// GOOGLE_API_KEY.
func New(ctx context.Context, provider, model string) (Service, error) {
	switch provider {
	case ProviderClaudeCLI, "":
		return NewClaudeCLI(WithClaudeModel(model)), nil
	case ProviderGemini:
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			key = os.Getenv("GOOGLE_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("gemini: GEMINI_API_KEY is not set")
		}
		return NewGemini(ctx, key, model)
	case ProviderOllama:
		return NewOllama(model)
	case ProviderMock:
		return NewMockService(`{}`), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

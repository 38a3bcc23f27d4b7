package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sozercan/session-analyzer/internal/config"
)

// NewProvider builds the transport selected by cfg.LLM.Provider.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return NewGemini(ctx, &cfg.Gemini)
	case "openai":
		return NewOpenAI(&cfg.OpenAI)
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}

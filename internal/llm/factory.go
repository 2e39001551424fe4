package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/sqltutor/internal/logger"
	"github.com/abhisek/sqltutor/internal/store"
)

// NewProvider builds the configured provider and its middleware chain:
// caller -> timeout -> retry -> logging -> vendor. Every attempt is logged,
// retries included. events may be nil.
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo, log *logger.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error
	switch cfg.Provider {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case ProviderMock:
		base = NewMockProvider()
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	logger.OrNop(log).Debug("llm provider ready", "provider", base.Name(), "model", base.ModelID())

	p := WithLogging(base, events, log)
	p = WithRetry(p, cfg.Retry)
	return WithTimeout(p, cfg.Timeout), nil
}

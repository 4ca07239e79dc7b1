package agent

import (
	"context"
	"fmt"

	"github.com/etnz/tradeledger/config"
)

// NewCompleter returns the completion service selected by cfg.Provider.
func NewCompleter(ctx context.Context, cfg config.AgentConfig) (Completer, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGemini(ctx, cfg.Model, cfg.APIKey, cfg.BaseURL)
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}

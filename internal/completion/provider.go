package completion

import (
	"fmt"

	"github.com/tbourn/go-companion-bot/internal/config"
)

// New builds the Client selected by cfg.Provider.
func New(cfg config.CompletionConfig) (Client, error) {
	switch cfg.Provider {
	case "", "modelslab":
		return NewHostedClient(HostedConfig{
			Endpoint:  cfg.Endpoint,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			BaseURL:   cfg.Endpoint,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}), nil
	}
	return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
}

package textgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/constants"
)

// NewFromConfig builds the generator selected by TEXT_PROVIDER.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Generator, error) {
	switch cfg.Text.Provider {
	case constants.ProviderOpenAI:
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai text provider")
		}
		pricing := cfg.GetModelPricing(cfg.OpenAI.Model).Standard
		return NewOpenAIProvider(cfg.OpenAI.Token, cfg.OpenAI.Model, RequestPricing{Input: pricing.Input, Output: pricing.Output}), nil
	case constants.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini text provider")
		}
		pricing := cfg.GetModelPricing(geminiModel).Standard
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey, RequestPricing{Input: pricing.Input, Output: pricing.Output})
	case constants.ProviderRemote:
		if cfg.Text.URL == "" {
			return nil, errors.New("TEXTGEN_URL is required for the remote text provider")
		}
		return NewRemoteProvider(cfg.Text.URL, nil), nil
	case constants.ProviderStatic:
		return &StaticProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown text provider: %s", cfg.Text.Provider)
	}
}

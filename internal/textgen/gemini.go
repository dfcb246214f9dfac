package textgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-variants/internal/constants"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	usageTracker
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string, pricing RequestPricing) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		usageTracker: usageTracker{pricing: pricing},
		client:       client,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) ([]string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildPrompt(req)}},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var variants []string
	var lastError error

	for range constants.TextGenAttempts {
		result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			lastError = fmt.Errorf("gemini API error: %w", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		// Track usage
		if result.UsageMetadata != nil {
			p.trackUsage(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
		}

		content := result.Text()
		if content == "" {
			lastError = errors.New("no response from Gemini")
			continue
		}

		batch, err := parseVariants(content)
		if err != nil {
			lastError = err
			continue
		}
		variants = collect(variants, batch, req.N)
		if len(variants) >= req.N {
			break
		}
	}

	if len(variants) == 0 {
		if lastError == nil {
			lastError = ErrNoVariants
		}
		return nil, lastError
	}
	return variants, nil
}

package textgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

type OpenAIProvider struct {
	usageTracker
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string, pricing RequestPricing, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		usageTracker: usageTracker{pricing: pricing},
		client:       &client,
		model:        model,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.model
}

// Generate asks the model for req.N variants, retrying once when the answer
// is not usable JSON or holds too few distinct texts.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) ([]string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(buildPrompt(req)),
				},
			},
		},
	}

	var variants []string
	var lastError error

	for range constants.TextGenAttempts {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(p.model),
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			Temperature: openai.Float(1.0),
		})
		if err != nil {
			lastError = fmt.Errorf("OpenAI API error: %w", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		p.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		if len(resp.Choices) == 0 {
			lastError = errors.New("no response from OpenAI")
			continue
		}

		batch, err := parseVariants(resp.Choices[0].Message.Content)
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

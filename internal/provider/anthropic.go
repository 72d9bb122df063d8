package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	AnthropicName = "anthropic"

	defaultAnthropicModel = "claude-haiku-4-5"
	anthropicMaxTokens    = 512
)

// Anthropic implements Generator with the Anthropic Messages API.
type Anthropic struct {
	model  string
	client anthropic.Client
}

// NewAnthropic creates the Anthropic backend. baseURL is optional and used by tests.
func NewAnthropic(apiKey, model, baseURL string) *Anthropic {
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: defaultHTTPTimeout}),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{
		model:  model,
		client: anthropic.NewClient(opts...),
	}
}

func (c *Anthropic) Name() string { return AnthropicName }
func (c *Anthropic) Tier() Tier   { return TierPaid }

func (c *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   anthropicMaxTokens,
		Temperature: anthropic.Float(Temperature),
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusTooManyRequests {
				return "", newError(CodeRateLimited, "Anthropic rate limited")
			}
			return "", newError(CodeUpstream, "Anthropic error: %d", apiErr.StatusCode)
		}
		return "", AsError(err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			if text := strings.TrimSpace(block.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", newError(CodeEmptyResponse, "AI returned an empty response")
}

package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName = "openai"

	defaultOpenAIModel = "gpt-4o-mini"
)

// OpenAIConfig holds configuration for the OpenAI backend.
type OpenAIConfig struct {
	APIKey     string
	Model      string       // "gpt-4o-mini" (default)
	BaseURL    string       // Optional (tests)
	HTTPClient *http.Client // Optional (tests)
}

// OpenAI implements Generator using the official OpenAI SDK.
type OpenAI struct {
	model  string
	client openai.Client
}

// NewOpenAI creates the paid OpenAI backend.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Retries are an explicit caller decision.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

func (c *OpenAI) Name() string { return OpenAIName }
func (c *OpenAI) Tier() Tier   { return TierPaid }

func (c *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(Temperature),
	})
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return "", newError(CodeEmptyResponse, "AI returned an empty response")
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", newError(CodeEmptyResponse, "AI returned an empty response")
	}
	return text, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return newError(CodeRateLimited, "OpenAI rate limited: %s", apiErr.Message)
		}
		if apiErr.Message != "" {
			return newError(CodeUpstream, "OpenAI error: %d - %s", apiErr.StatusCode, apiErr.Message)
		}
		return newError(CodeUpstream, "OpenAI error: %d", apiErr.StatusCode)
	}
	return AsError(err)
}

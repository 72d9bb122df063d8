package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	OpenRouterName = "openrouter"

	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "openai/gpt-3.5-turbo"
	defaultHTTPTimeout       = 60 * time.Second
	maxRetries               = 3
	initialBackoff           = 500 * time.Millisecond
)

// OpenRouter calls the OpenRouter chat completions API.
type OpenRouter struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
}

// NewOpenRouter creates an OpenRouter backend. Empty model and baseURL fall back to defaults.
func NewOpenRouter(apiKey, model, baseURL string) *OpenRouter {
	if model == "" {
		model = defaultOpenRouterModel
	}
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &OpenRouter{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		referer: "https://github.com/kalambet/formcat",
		title:   "formcat",
	}
}

func (c *OpenRouter) Name() string { return OpenRouterName }
func (c *OpenRouter) Tier() Tier   { return TierFree }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends prompt as a single-turn chat. HTTP 429 responses are
// retried with exponential backoff; every other failure returns at once.
func (c *OpenRouter) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	text, err := retry.DoWithData(
		func() (string, error) {
			return c.doChat(ctx, body)
		},
		retry.Context(ctx),
		retry.Attempts(maxRetries),
		retry.Delay(initialBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRateLimit),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if isRateLimit(err) {
			return "", newError(CodeRateLimited, "OpenRouter rate limited after %d attempts", maxRetries)
		}
		return "", AsError(err)
	}
	return text, nil
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

func (c *OpenRouter) doChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", newError(CodeUpstream, "OpenRouter error: %d - %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", newError(CodeEmptyResponse, "AI returned an empty response")
	}
	text := strings.TrimSpace(cr.Choices[0].Message.Content)
	if text == "" {
		return "", newError(CodeEmptyResponse, "AI returned an empty response")
	}
	return text, nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	maxRequestRetries = 3
	baseBackoff       = 2 * time.Second
	maxBackoff        = 30 * time.Second
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	backoff time.Duration // initial retry backoff
}

// OpenAIOpts holds parameters for creating an OpenAIClient.
type OpenAIOpts struct {
	BaseURL string // default https://api.openai.com/v1
	APIKey  string
	Model   string // default gpt-4o-mini
	// For testing: inject a custom HTTP client.
	HTTPClient *http.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
func NewOpenAIClient(opts OpenAIOpts) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	c := &OpenAIClient{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		http:    opts.HTTPClient,
		backoff: baseBackoff,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	return c, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Seed        int64         `json:"seed,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the prompt and returns the raw completion text. Transient
// failures (429, 5xx, network errors) are retried with capped exponential
// backoff; other statuses fail immediately.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Seed:        opts.Seed,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt <= maxRequestRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		text, retryable, err := c.once(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("llm: retries exhausted: %w", lastErr)
}

func (c *OpenAIClient) once(ctx context.Context, body []byte) (text string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("llm: status %d: %s", resp.StatusCode, truncate(data, 200))
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("llm: status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("llm: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("llm: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("llm: empty choices in response")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RESTClient implements Client against a Hamming-style voice API: a
// start-call endpoint that accepts a webhook URL, and a media endpoint
// serving the recording once the webhook has fired.
type RESTClient struct {
	baseURL    string
	apiKey     string
	webhookURL string
	http       *http.Client
}

// RESTOpts holds parameters for creating a RESTClient.
type RESTOpts struct {
	BaseURL    string // e.g. https://app.hamming.ai/api
	APIKey     string
	WebhookURL string // public URL of this process's call-complete endpoint
	// For testing: inject a custom HTTP client.
	HTTPClient *http.Client
}

// NewRESTClient creates a voice client.
func NewRESTClient(opts RESTOpts) (*RESTClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("voice: base url is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("voice: api key is required")
	}
	if opts.WebhookURL == "" {
		return nil, fmt.Errorf("voice: webhook url is required")
	}
	c := &RESTClient{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		webhookURL: opts.WebhookURL,
		http:       opts.HTTPClient,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	return c, nil
}

type startCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Prompt      string `json:"prompt"`
	WebhookURL  string `json:"webhook_url"`
}

type startCallResponse struct {
	ID string `json:"id"`
}

// PlaceCall starts an outbound call. A 4xx from the provider is treated as
// an explicit carrier reject (not retryable); other failures are ordinary
// errors the caller may retry.
func (c *RESTClient) PlaceCall(ctx context.Context, personaPrompt, phoneNumber string) (string, error) {
	body, err := json.Marshal(startCallRequest{
		PhoneNumber: phoneNumber,
		Prompt:      personaPrompt,
		WebhookURL:  c.webhookURL,
	})
	if err != nil {
		return "", fmt.Errorf("voice: marshal start-call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/exercise/start-call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("voice: build start-call: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("voice: start call: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", fmt.Errorf("%w: status %d: %s", ErrCarrierReject, resp.StatusCode, truncate(data, 200))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("voice: start call status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed startCallResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("voice: decode start-call response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("voice: start-call response missing call id")
	}
	return parsed.ID, nil
}

// FetchRecording downloads the recording for a completed call.
func (c *RESTClient) FetchRecording(ctx context.Context, callID string) ([]byte, string, error) {
	u := fmt.Sprintf("%s/media/exercise?id=%s", c.baseURL, url.QueryEscape(callID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("voice: build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("voice: fetch recording %s: %w", callID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("voice: fetch recording %s: status %d", callID, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("voice: read recording %s: %w", callID, err)
	}

	format := "wav"
	if ct := resp.Header.Get("Content-Type"); ct == "audio/mpeg" {
		format = "mp3"
	}
	return audio, format, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

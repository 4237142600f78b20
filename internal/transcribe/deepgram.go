package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultDeepgramURL = "https://api.deepgram.com"

// DeepgramClient implements Transcriber against Deepgram's prerecorded
// API, requesting utterance segmentation and diarization.
type DeepgramClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// DeepgramOpts holds parameters for creating a DeepgramClient.
type DeepgramOpts struct {
	BaseURL string // default https://api.deepgram.com
	APIKey  string
	// For testing: inject a custom HTTP client.
	HTTPClient *http.Client
}

// NewDeepgramClient creates a transcriber client.
func NewDeepgramClient(opts DeepgramOpts) (*DeepgramClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("transcribe: api key is required")
	}
	c := &DeepgramClient{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		http:    opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultDeepgramURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 120 * time.Second}
	}
	return c, nil
}

type deepgramResponse struct {
	Results struct {
		Utterances []struct {
			Speaker    *int    `json:"speaker"`
			Transcript string  `json:"transcript"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
		} `json:"utterances"`
	} `json:"results"`
}

// Transcribe uploads the audio and returns speaker turns. Deepgram labels
// speakers with integers; the first speaker heard is mapped to the agent
// (the remote system answers and talks first), the second to the user.
// When diarization is absent the turns come back with empty speakers for
// the caller to assign via AssignRoles.
func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, format string) ([]Turn, error) {
	u := c.baseURL + "/v1/listen?utterances=true&diarize=true&punctuate=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/"+format)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcribe: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed deepgramResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("transcribe: decode response: %w", err)
	}
	if len(parsed.Results.Utterances) == 0 {
		return nil, fmt.Errorf("transcribe: no utterances in response")
	}

	speakerRole := make(map[int]string)
	turns := make([]Turn, 0, len(parsed.Results.Utterances))
	for _, u := range parsed.Results.Utterances {
		t := Turn{Text: u.Transcript, Start: u.Start, End: u.End}
		if u.Speaker != nil {
			role, ok := speakerRole[*u.Speaker]
			if !ok {
				if len(speakerRole) == 0 {
					role = SpeakerAgent
				} else {
					role = SpeakerUser
				}
				speakerRole[*u.Speaker] = role
			}
			t.Speaker = role
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

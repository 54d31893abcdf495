// Package podcast asks the backend to narrate a research report.
package podcast

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

	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// Client talks to the backend's podcast generation endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// New returns a client for the backend at baseURL. httpClient may be nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		// Audio generation is slow; allow generous time.
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// Generate submits report text and returns the downloadable audio URL.
func (c *Client) Generate(ctx context.Context, report string) (string, error) {
	body, err := json.Marshal(protocol.PodcastRequest{Content: report})
	if err != nil {
		return "", fmt.Errorf("podcast: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/podcast/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("podcast: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("podcast: generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("podcast: backend returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var payload protocol.PodcastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("podcast: decode response: %w", err)
	}
	if payload.Error != "" {
		return "", errors.New(payload.Error)
	}
	if payload.AudioURL == "" {
		return "", errors.New("podcast: backend returned no audio URL")
	}
	return payload.AudioURL, nil
}

// Result is the payload stored on the dedicated podcast message, as JSON.
// The camelCase keys match what the frontend expects.
type Result struct {
	Title      string `json:"title"`
	ResearchID string `json:"researchId"`
	AudioURL   string `json:"audioUrl,omitempty"`
	Error      string `json:"error,omitempty"`
}

// JSON renders the result for embedding in a message's content.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"error":"encode podcast result"}`
	}
	return string(data)
}

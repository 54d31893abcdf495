// Package stream receives the backend's incremental event feed.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// Client opens event streams against the backend. The base URL scheme picks
// the transport: http(s) uses server-sent events, ws(s) uses a WebSocket.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient returns a stream client for the backend at baseURL. httpClient
// may be nil; the default has no timeout because streams stay open for the
// whole turn.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// Stream submits req and returns a channel of incremental events plus a stop
// function. The channel closes when the server ends the turn, the context is
// cancelled, or stop is called. Transport failures arrive as a final RawEvent
// with nil Raw.
func (c *Client) Stream(ctx context.Context, req protocol.ChatRequest) (<-chan RawEvent, func(), error) {
	if strings.HasPrefix(c.baseURL, "ws://") || strings.HasPrefix(c.baseURL, "wss://") {
		return c.streamWS(ctx, req)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("stream: encode request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("stream: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("stream: connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, nil, fmt.Errorf("stream: backend returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	debug.LogKV("stream", "sse stream opened", "thread_id", req.ThreadID)
	ch := Parse(ctx, resp.Body)
	stop := func() {
		cancel()
		resp.Body.Close()
	}
	return ch, stop, nil
}

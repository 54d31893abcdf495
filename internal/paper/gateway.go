// Package paper fetches and caches the compiled final document.
package paper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// Artifact is the compiled document plus its status metadata.
type Artifact struct {
	FinalPaper       string
	Status           string
	PaperWritingMode bool
}

// State is the gateway's tri-state snapshot: idle/loading, then either an
// error or a value. A failed fetch leaves any previous artifact untouched.
type State struct {
	Loading  bool
	Err      string
	Artifact *Artifact
}

// Gateway retrieves the compiled document for a thread and caches it. At most
// one fetch is in flight at a time, and responses for a superseded thread are
// discarded, so callers always observe a consistent (thread, state) pair.
type Gateway struct {
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	threadID string
	loading  bool
	err      string
	artifact *Artifact
}

// New returns a gateway for the backend at baseURL. client may be nil.
func New(baseURL string, client *http.Client) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Fetch starts retrieval of the compiled document for threadID. The HTTP call
// runs on its own goroutine; done, when non-nil, is invoked with the outcome
// after the state is stored. A fetch that resolves after Clear or after a
// fetch for a different thread is dropped. No-op while a fetch is in flight.
func (g *Gateway) Fetch(ctx context.Context, threadID string, done func(err error)) {
	g.mu.Lock()
	if g.loading {
		g.mu.Unlock()
		return
	}
	g.loading = true
	g.err = ""
	g.threadID = threadID
	g.mu.Unlock()

	go func() {
		art, err := g.fetchOnce(ctx, threadID)

		g.mu.Lock()
		if g.threadID != threadID {
			// Superseded by Clear or a newer thread; drop the stale response.
			g.mu.Unlock()
			debug.LogKV("paper", "discarding stale response", "thread_id", threadID)
			return
		}
		g.loading = false
		if err != nil {
			g.err = err.Error()
		} else {
			g.artifact = art
		}
		g.mu.Unlock()

		if done != nil {
			done(err)
		}
	}()
}

// fetchOnce performs one GET against the compiled-document endpoint.
func (g *Gateway) fetchOnce(ctx context.Context, threadID string) (*Artifact, error) {
	url := g.baseURL + "/api/paper/" + threadID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("paper: build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paper: fetch final paper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("paper: backend returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload protocol.FinalPaperResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("paper: decode response: %w", err)
	}
	return &Artifact{
		FinalPaper:       payload.FinalPaper,
		Status:           payload.Status,
		PaperWritingMode: payload.PaperWritingMode,
	}, nil
}

// State returns the current tri-state snapshot.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{Loading: g.loading, Err: g.err, Artifact: g.artifact}
}

// ArtifactPresent reports whether a fetch has succeeded for the current thread.
func (g *Gateway) ArtifactPresent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.artifact != nil
}

// InFlight reports whether a fetch is currently running.
func (g *Gateway) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loading
}

// Clear resets artifact, error, and loading to the initial state. Used when a
// new thread begins; any in-flight fetch for the old thread resolves into the
// void.
func (g *Gateway) Clear() {
	g.mu.Lock()
	g.threadID = ""
	g.loading = false
	g.err = ""
	g.artifact = nil
	g.mu.Unlock()
}

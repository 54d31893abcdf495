// Package workflow infers the paper-writing pipeline state from the message
// stream.
//
// The backend runs outline → sections → references with no terminal event for
// the pipeline as a whole, so completion is a liveness heuristic, not a proof:
// after each qualifying commit the engine schedules a debounced re-evaluation
// of a completion predicate, and re-checks "artifact already present" at fire
// time so overlapping windows still cause at most one fetch.
package workflow

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/internal/store"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// Options configures an Engine. Schedule defaults to time.AfterFunc; the
// session overrides it to marshal the callback onto its reducer step, and
// tests override it to fire deterministically.
type Options struct {
	// Delay is the debounce window between a qualifying commit and the
	// completion re-evaluation. Sibling agent messages commit within a short
	// window of each other; evaluating immediately risks firing before a
	// trailing references_writer has started streaming.
	Delay time.Duration

	Schedule func(d time.Duration, fn func())

	// ArtifactPresent and FetchInFlight come from the final artifact gateway.
	ArtifactPresent func() bool
	FetchInFlight   func() bool

	// Fetch triggers retrieval of the compiled document.
	Fetch func(threadID string)
}

// Engine observes committed messages and derives the paper-writing state:
// the active outline, the accumulated section bodies, and whether the
// pipeline looks finished.
type Engine struct {
	store *store.Store
	opts  Options

	mu               sync.Mutex
	paperMode        bool
	outlineID        string
	sections         []string
	completedPaperID string
	committed        map[string]bool
}

// New returns an engine over s.
func New(s *store.Store, opts Options) *Engine {
	if opts.Schedule == nil {
		opts.Schedule = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	if opts.ArtifactPresent == nil {
		opts.ArtifactPresent = func() bool { return false }
	}
	if opts.FetchInFlight == nil {
		opts.FetchInFlight = func() bool { return false }
	}
	if opts.Fetch == nil {
		opts.Fetch = func(string) {}
	}
	return &Engine{store: s, opts: opts, committed: make(map[string]bool)}
}

// PaperMode reports whether the session has ever seen a paper-writing agent.
func (e *Engine) PaperMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paperMode
}

// OutlineID returns the id of the latest committed outline message, or "".
func (e *Engine) OutlineID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outlineID
}

// Sections returns a copy of the extracted section bodies.
func (e *Engine) Sections() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sections...)
}

// CompletedPaperID returns the id of the injected final document message.
func (e *Engine) CompletedPaperID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completedPaperID
}

// SetCompletedPaper records the injected final document message id.
func (e *Engine) SetCompletedPaper(id string) {
	e.mu.Lock()
	e.completedPaperID = id
	e.mu.Unlock()
}

// Reset clears all derived state for a new thread.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.paperMode = false
	e.outlineID = ""
	e.sections = nil
	e.completedPaperID = ""
	e.committed = make(map[string]bool)
	e.mu.Unlock()
}

// OnMessage observes one merged message. Paper-mode detection fires on any
// observation of a paper-writing agent; everything else applies to committed
// messages only.
func (e *Engine) OnMessage(msg *store.Message) {
	switch msg.Agent {
	case protocol.AgentOutlineWriter, protocol.AgentPaperWriter:
		e.mu.Lock()
		if !e.paperMode {
			e.paperMode = true
			debug.LogKV("workflow", "paper-writing pipeline detected", "message_id", msg.ID)
		}
		e.mu.Unlock()
	}

	if msg.IsStreaming {
		return
	}

	// A committed message can be observed again, e.g. when a late tool result
	// resolves onto it. Commit transitions fire once per message id.
	e.mu.Lock()
	if e.committed[msg.ID] {
		e.mu.Unlock()
		return
	}
	e.committed[msg.ID] = true
	e.mu.Unlock()

	switch msg.Agent {
	case protocol.AgentOutlineWriter:
		e.mu.Lock()
		e.outlineID = msg.ID
		// A new outline invalidates prior section accumulation.
		e.sections = nil
		e.mu.Unlock()
		debug.LogKV("workflow", "outline committed", "message_id", msg.ID)

	case protocol.AgentPaperWriter:
		body := extractSection(msg.Content)
		e.mu.Lock()
		e.sections = append(e.sections, body)
		n := len(e.sections)
		e.mu.Unlock()
		debug.LogKV("workflow", "section committed", "message_id", msg.ID, "sections", n)
	}

	switch msg.Agent {
	case protocol.AgentPaperWriter, protocol.AgentReferencesWriter:
		threadID := msg.ThreadID
		e.opts.Schedule(e.opts.Delay, func() { e.evaluate(threadID) })
	}
}

// evaluate checks the completion predicate at fire time. Multiple pending
// evaluations are expected; only the first one that finds the predicate true
// triggers the fetch, because the gateway reports in-flight and present state.
func (e *Engine) evaluate(threadID string) {
	if e.opts.ArtifactPresent() || e.opts.FetchInFlight() {
		return
	}

	var hasSection, refsStreaming, refsCommitted bool
	for _, id := range e.store.MessageIDs() {
		msg, ok := e.store.Message(id)
		if !ok {
			continue
		}
		switch msg.Agent {
		case protocol.AgentPaperWriter:
			hasSection = true
		case protocol.AgentReferencesWriter:
			if msg.IsStreaming {
				refsStreaming = true
			} else {
				refsCommitted = true
			}
		}
	}

	if !hasSection || refsStreaming || !refsCommitted {
		return
	}
	if e.store.AnyStreaming() {
		return
	}

	debug.LogKV("workflow", "pipeline inferred complete, fetching final paper", "thread_id", threadID)
	e.opts.Fetch(threadID)
}

// extractSection pulls the section body out of a paper_writer message,
// preferring the structured payload and degrading to the raw text when the
// content is not the expected record.
func extractSection(content string) string {
	var payload protocol.SectionPayload
	if err := json.Unmarshal([]byte(content), &payload); err == nil && payload.Content != "" {
		return payload.Content
	}
	return content
}

var (
	headingRe  = regexp.MustCompile(`(?m)^#{1,3}\s+\S`)
	numberedRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	cjkChapter = regexp.MustCompile(`第[一二三四五六七八九十\d]+[章节部]`)
)

// EstimateSections guesses the expected section count from marker density in
// the outline text, clamped to [2, 8]. Diagnostic only: it feeds progress
// reporting and never gates the fetch decision.
func EstimateSections(outline string) int {
	if strings.TrimSpace(outline) == "" {
		return 2
	}
	n := len(headingRe.FindAllString(outline, -1))
	if m := len(numberedRe.FindAllString(outline, -1)); m > n {
		n = m
	}
	if m := len(cjkChapter.FindAllString(outline, -1)); m > n {
		n = m
	}
	if n < 2 {
		return 2
	}
	if n > 8 {
		return 8
	}
	return n
}

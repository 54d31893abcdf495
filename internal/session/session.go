// Package session drives one conversation against the research backend: it
// owns the entity store, feeds it from the event stream, and runs the derived
// engines (research grouping, paper workflow, final artifact retrieval).
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrybe-cli/scrybe/internal/config"
	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/internal/eventq"
	"github.com/scrybe-cli/scrybe/internal/hexid"
	"github.com/scrybe-cli/scrybe/internal/merge"
	"github.com/scrybe-cli/scrybe/internal/paper"
	"github.com/scrybe-cli/scrybe/internal/podcast"
	"github.com/scrybe-cli/scrybe/internal/research"
	"github.com/scrybe-cli/scrybe/internal/store"
	"github.com/scrybe-cli/scrybe/internal/stream"
	"github.com/scrybe-cli/scrybe/internal/workflow"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// Notice is a transient out-of-band message for the UI (errors, milestones).
type Notice struct {
	Level string // "info" or "error"
	Text  string
}

// ErrBusy is returned by Send while a response is still streaming.
var ErrBusy = errors.New("session: a response is already streaming")

// Session is a single conversation thread plus the machinery that keeps its
// derived state consistent. Event application is serialized on mu, so the
// merge engine, research aggregator, and workflow engine always observe
// increments in arrival order.
type Session struct {
	cfg      *config.Settings
	store    *store.Store
	merge    *merge.Engine
	research *research.Aggregator
	workflow *workflow.Engine
	gateway  *paper.Gateway
	podcast  *podcast.Client
	client   *stream.Client

	mu         sync.Mutex
	threadID   string
	responding bool
	stop       func()

	notices chan Notice
}

// New assembles a session against the backend named in cfg.
func New(cfg *config.Settings) *Session {
	s := &Session{
		cfg:      cfg,
		store:    store.New(),
		gateway:  paper.New(cfg.APIBaseURL, nil),
		podcast:  podcast.New(cfg.APIBaseURL, nil),
		client:   stream.NewClient(cfg.APIBaseURL, nil),
		threadID: uuid.NewString(),
		notices:  make(chan Notice, 16),
	}
	s.merge = merge.New(s.store)
	s.workflow = workflow.New(s.store, workflow.Options{
		Delay:           cfg.PaperCheckDelay(),
		Schedule:        s.schedule,
		ArtifactPresent: s.gateway.ArtifactPresent,
		FetchInFlight:   s.gateway.InFlight,
		Fetch:           s.fetchPaper,
	})
	s.research = research.New(s.store, s.workflow.PaperMode)
	return s
}

// Store exposes the entity store for read-side consumers (TUI, display).
func (s *Session) Store() *store.Store { return s.store }

// Workflow exposes the derived paper-writing state.
func (s *Session) Workflow() *workflow.Engine { return s.workflow }

// Gateway exposes the final artifact state.
func (s *Session) Gateway() *paper.Gateway { return s.gateway }

// Notices returns the out-of-band notice channel. Messages are dropped, not
// blocked on, when the receiver lags.
func (s *Session) Notices() <-chan Notice { return s.notices }

// ThreadID returns the current backend thread id.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Responding reports whether a response stream is currently open.
func (s *Session) Responding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responding
}

func (s *Session) notify(level, text string) {
	if !eventq.Offer(s.notices, Notice{Level: level, Text: text}) {
		debug.LogKV("session", "dropping notice", "level", level, "text", text)
	}
}

// schedule defers fn and re-serializes it with event application.
func (s *Session) schedule(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		fn()
	})
}

// Send submits content and consumes the response stream until it ends. It
// blocks for the whole turn; callers wanting concurrency run it on their own
// goroutine. interruptFeedback, when non-empty, answers a prior interrupt
// instead of opening a fresh exchange, and is echoed onto the interrupted
// message. onEvent, when non-nil, observes each applied event.
func (s *Session) Send(ctx context.Context, content, interruptFeedback string, onEvent func(protocol.Event)) error {
	s.mu.Lock()
	if s.responding {
		s.mu.Unlock()
		return ErrBusy
	}
	s.responding = true
	threadID := s.threadID

	if interruptFeedback == "" {
		user := &store.Message{
			ID:       hexid.NewLong(),
			ThreadID: threadID,
			Role:     store.RoleUser,
			Content:  content,
		}
		if err := s.store.AppendMessage(user); err != nil {
			s.responding = false
			s.mu.Unlock()
			return err
		}
	} else {
		s.recordInterruptFeedbackLocked(interruptFeedback)
	}
	s.mu.Unlock()

	req := protocol.ChatRequest{
		Content:                       content,
		ThreadID:                      threadID,
		InterruptFeedback:             interruptFeedback,
		AutoAcceptedPlan:              s.cfg.AutoAcceptedPlan,
		EnableBackgroundInvestigation: s.cfg.EnableBackgroundInvestigation,
		MaxPlanIterations:             s.cfg.MaxPlanIterations,
		MaxStepNum:                    s.cfg.MaxStepNum,
		MaxSearchResults:              s.cfg.MaxSearchResults,
		MCPSettings:                   s.cfg.MCPSettings,
	}

	ch, stop, err := s.client.Stream(ctx, req)
	if err != nil {
		s.mu.Lock()
		s.responding = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	var streamErr error
	for raw := range ch {
		if raw.Err != nil {
			if raw.Transport() {
				streamErr = raw.Err
				break
			}
			debug.LogKV("session", "skipping malformed event", "error", raw.Err.Error(), "raw", string(raw.Raw))
			continue
		}
		s.apply(raw.Parsed)
		if onEvent != nil {
			onEvent(raw.Parsed)
		}
	}

	s.mu.Lock()
	s.responding = false
	s.stop = nil
	// Anything still streaming is committed with whatever content arrived.
	s.merge.FinalizeAll()
	if streamErr != nil {
		// No more activity can arrive for the open unit; leaving the marker
		// set would fold the next turn's messages into it.
		s.store.SetOngoingResearch("")
	}
	s.mu.Unlock()
	stop()

	if streamErr != nil {
		s.notify("error", "connection lost: "+streamErr.Error())
		return fmt.Errorf("session: stream failed: %w", streamErr)
	}
	return nil
}

// apply runs one event through the reducer chain under the session lock.
func (s *Session) apply(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.merge.Apply(ev)
	if msg == nil {
		return
	}
	s.research.OnMessage(msg)
	s.workflow.OnMessage(msg)
}

// recordInterruptFeedbackLocked echoes the chosen option onto the most recent
// interrupted message. Callers hold s.mu.
func (s *Session) recordInterruptFeedbackLocked(feedback string) {
	ids := s.store.MessageIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		msg, ok := s.store.Message(ids[i])
		if !ok {
			continue
		}
		if msg.FinishReason == protocol.FinishReasonInterrupt {
			next := msg.Clone()
			next.InterruptFeedback = feedback
			s.store.UpdateMessage(next)
			return
		}
	}
}

// Cancel tears down the open response stream, if any. In-flight messages are
// finalized by the Send loop as the stream drains.
func (s *Session) Cancel() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// NewThread abandons the current conversation: any open stream is cancelled,
// all entities and derived state are dropped, and a fresh thread id is
// minted. Responses still in flight for the old thread resolve into the void.
func (s *Session) NewThread() {
	s.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Reset()
	s.workflow.Reset()
	s.gateway.Clear()
	s.threadID = uuid.NewString()
	debug.LogKV("session", "new thread", "thread_id", s.threadID)
}

// fetchPaper is the workflow engine's fetch hook.
func (s *Session) fetchPaper(threadID string) {
	s.gateway.Fetch(context.Background(), threadID, s.onPaperFetched)
}

// onPaperFetched runs when a final artifact fetch resolves. On success the
// document is injected into the conversation as a dedicated message and any
// ongoing research unit is closed.
func (s *Session) onPaperFetched(err error) {
	if err != nil {
		s.notify("error", "final paper fetch failed: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.gateway.State()
	if st.Artifact == nil || st.Artifact.FinalPaper == "" {
		return
	}
	if s.workflow.CompletedPaperID() != "" {
		return
	}

	msg := &store.Message{
		ID:       hexid.NewLong(),
		ThreadID: s.threadID,
		Role:     store.RoleAssistant,
		Agent:    protocol.AgentFinalPaper,
		Content:  st.Artifact.FinalPaper,
	}
	if err := s.store.AppendMessage(msg); err != nil {
		debug.LogKV("session", "final paper message already present", "error", err.Error())
		return
	}
	s.workflow.SetCompletedPaper(msg.ID)
	s.store.SetOngoingResearch("")
	s.notify("info", "final paper ready")
}

// GeneratePodcast narrates the report of the given research unit and records
// the outcome as a dedicated podcast message. Blocks until the backend
// responds.
func (s *Session) GeneratePodcast(ctx context.Context, researchID string) error {
	s.mu.Lock()
	unit, ok := s.store.Research(researchID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("session: unknown research %q", researchID)
	}
	if unit.ReportMessageID == "" {
		s.mu.Unlock()
		return errors.New("session: research has no report yet")
	}
	report, ok := s.store.Message(unit.ReportMessageID)
	if !ok || report.IsStreaming {
		s.mu.Unlock()
		return errors.New("session: report is not ready")
	}
	title := researchTitle(s.store, unit)
	threadID := s.threadID
	reportText := report.Content
	s.mu.Unlock()

	audioURL, err := s.podcast.Generate(ctx, reportText)

	result := podcast.Result{Title: title, ResearchID: researchID, AudioURL: audioURL}
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	msg := &store.Message{
		ID:       hexid.NewLong(),
		ThreadID: threadID,
		Role:     store.RoleAssistant,
		Agent:    protocol.AgentPodcast,
		Content:  result.JSON(),
	}
	if appendErr := s.store.AppendMessage(msg); appendErr != nil {
		s.mu.Unlock()
		return appendErr
	}
	s.mu.Unlock()

	return err
}

// researchTitle derives a display title from the unit's plan message.
func researchTitle(s *store.Store, unit *store.Research) string {
	plan, ok := s.Message(unit.PlanMessageID)
	if !ok {
		return "Research"
	}
	line := plan.Content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	if line == "" {
		return "Research"
	}
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return line
}

// Package store holds the in-memory conversation model for one session: every
// Message and Research entity, keyed by id with insertion-ordered id lists for
// stable iteration.
//
// The model is rebuilt from the stream on every run; nothing here touches
// disk. All mutation happens on the session's reducer goroutine, but reads may
// come from the terminal frontend, so access is guarded by a RWMutex.
// Subscribers are notified synchronously before a mutating call returns, so
// downstream aggregation can re-read the store within the same logical step.
package store

import (
	"fmt"
	"sync"
)

// Store owns all entities for a single session.
type Store struct {
	mu sync.RWMutex

	messageIDs []string
	messages   map[string]*Message

	researchIDs []string
	researches  map[string]*Research

	// ongoingResearchID marks the unit still accumulating activity ("" when
	// none). At most one research unit is ongoing at a time.
	ongoingResearchID string
	// openResearchID marks the unit expanded in the frontend.
	openResearchID string

	subscribers []func()
}

// New returns an empty store.
func New() *Store {
	return &Store{
		messages:   make(map[string]*Message),
		researches: make(map[string]*Research),
	}
}

// Subscribe registers fn to run synchronously after every structural change.
// Subscribers must not mutate the store.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// notify runs outside the store lock so subscribers may read back.
func (s *Store) notify() {
	s.mu.RLock()
	subs := s.subscribers
	s.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

// AppendMessage adds a new message id to the ordered list and inserts the
// entry. It returns an error when the id already exists; the merge engine
// guarantees append is called at most once per id.
func (s *Store) AppendMessage(m *Message) error {
	s.mu.Lock()
	if _, exists := s.messages[m.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("store: message %q already exists", m.ID)
	}
	s.messageIDs = append(s.messageIDs, m.ID)
	s.messages[m.ID] = m
	s.mu.Unlock()

	s.notify()
	return nil
}

// UpdateMessage overwrites the entry for an existing id without touching the
// ordered id list. Updating an unknown id means the first event for the
// message was lost upstream; that is a programming error, not a recoverable
// condition, so it panics.
func (s *Store) UpdateMessage(m *Message) {
	s.mu.Lock()
	if _, exists := s.messages[m.ID]; !exists {
		s.mu.Unlock()
		panic(fmt.Sprintf("store: update of unknown message %q", m.ID))
	}
	s.messages[m.ID] = m
	s.mu.Unlock()

	s.notify()
}

// UpdateMessages applies a batch of updates with a single notification.
// Every id must already exist.
func (s *Store) UpdateMessages(msgs []*Message) {
	s.mu.Lock()
	for _, m := range msgs {
		if _, exists := s.messages[m.ID]; !exists {
			s.mu.Unlock()
			panic(fmt.Sprintf("store: update of unknown message %q", m.ID))
		}
	}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	s.mu.Unlock()

	s.notify()
}

// Message returns the entry for id. Readers racing a not-yet-applied update
// get (nil, false) rather than a panic.
func (s *Store) Message(id string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	return m, ok
}

// HasMessage reports whether id exists.
func (s *Store) HasMessage(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.messages[id]
	return ok
}

// MessageIDs returns a copy of the ordered message id list.
func (s *Store) MessageIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.messageIDs...)
}

// MessageCount returns the number of stored messages.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messageIDs)
}

// AnyStreaming reports whether any message in the store is still streaming.
func (s *Store) AnyStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.IsStreaming {
			return true
		}
	}
	return false
}

// AppendResearch registers a new research unit. Research units are created
// exactly once per triggering message id.
func (s *Store) AppendResearch(r *Research) error {
	s.mu.Lock()
	if _, exists := s.researches[r.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("store: research %q already exists", r.ID)
	}
	s.researchIDs = append(s.researchIDs, r.ID)
	s.researches[r.ID] = r
	s.mu.Unlock()

	s.notify()
	return nil
}

// UpdateResearch overwrites an existing research unit. Panics on unknown ids
// for the same reason as UpdateMessage.
func (s *Store) UpdateResearch(r *Research) {
	s.mu.Lock()
	if _, exists := s.researches[r.ID]; !exists {
		s.mu.Unlock()
		panic(fmt.Sprintf("store: update of unknown research %q", r.ID))
	}
	s.researches[r.ID] = r
	s.mu.Unlock()

	s.notify()
}

// Research returns the unit for id.
func (s *Store) Research(id string) (*Research, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.researches[id]
	return r, ok
}

// ResearchIDs returns a copy of the ordered research id list.
func (s *Store) ResearchIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.researchIDs...)
}

// SetOngoingResearch marks id as the unit accumulating activity ("" clears).
func (s *Store) SetOngoingResearch(id string) {
	s.mu.Lock()
	s.ongoingResearchID = id
	s.mu.Unlock()

	s.notify()
}

// OngoingResearchID returns the ongoing unit id, or "".
func (s *Store) OngoingResearchID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ongoingResearchID
}

// SetOpenResearch marks id as expanded in the frontend ("" collapses all).
func (s *Store) SetOpenResearch(id string) {
	s.mu.Lock()
	s.openResearchID = id
	s.mu.Unlock()

	s.notify()
}

// OpenResearchID returns the expanded unit id, or "".
func (s *Store) OpenResearchID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openResearchID
}

// ResearchState derives the display state of a research unit from its report
// message: no report yet means still researching, a streaming report means
// the report is being generated, a committed report means done.
func (s *Store) ResearchState(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.researches[id]
	if !ok || r.ReportMessageID == "" {
		return ResearchStateResearching
	}
	report, ok := s.messages[r.ReportMessageID]
	if !ok || report.IsStreaming {
		return ResearchStateGeneratingReport
	}
	return ResearchStateReportGenerated
}

// Reset clears all entities and markers. Subscribers survive a reset; the
// session uses this when a new thread begins.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messageIDs = nil
	s.messages = make(map[string]*Message)
	s.researchIDs = nil
	s.researches = make(map[string]*Research)
	s.ongoingResearchID = ""
	s.openResearchID = ""
	s.mu.Unlock()

	s.notify()
}

package workflow

import (
	"reflect"
	"testing"
	"time"

	"github.com/scrybe-cli/scrybe/internal/store"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// fakeScheduler collects deferred evaluations so tests control firing order.
type fakeScheduler struct {
	pending []func()
}

func (f *fakeScheduler) schedule(_ time.Duration, fn func()) {
	f.pending = append(f.pending, fn)
}

func (f *fakeScheduler) fireAll() {
	pending := f.pending
	f.pending = nil
	for _, fn := range pending {
		fn()
	}
}

// fakeGateway mimics the final artifact gateway's observable state.
type fakeGateway struct {
	fetches  []string
	inFlight bool
	present  bool
}

func (g *fakeGateway) fetch(threadID string) {
	g.fetches = append(g.fetches, threadID)
	g.inFlight = true
}

func newTestEngine(s *store.Store) (*Engine, *fakeScheduler, *fakeGateway) {
	sched := &fakeScheduler{}
	gw := &fakeGateway{}
	e := New(s, Options{
		Delay:           time.Second,
		Schedule:        sched.schedule,
		ArtifactPresent: func() bool { return gw.present },
		FetchInFlight:   func() bool { return gw.inFlight },
		Fetch:           gw.fetch,
	})
	return e, sched, gw
}

func commit(s *store.Store, id, agent, content string) *store.Message {
	m := &store.Message{
		ID:       id,
		ThreadID: "t1",
		Role:     store.RoleAssistant,
		Agent:    agent,
		Content:  content,
	}
	if err := s.AppendMessage(m); err != nil {
		panic(err)
	}
	return m
}

func streaming(s *store.Store, id, agent string) *store.Message {
	m := &store.Message{
		ID:          id,
		ThreadID:    "t1",
		Role:        store.RoleAssistant,
		Agent:       agent,
		IsStreaming: true,
	}
	if err := s.AppendMessage(m); err != nil {
		panic(err)
	}
	return m
}

func TestPaperModeDetection(t *testing.T) {
	s := store.New()
	e, _, _ := newTestEngine(s)

	if e.PaperMode() {
		t.Fatal("fresh engine should not be in paper mode")
	}
	// Even a still-streaming observation flips the mode.
	e.OnMessage(streaming(s, "m1", protocol.AgentOutlineWriter))
	if !e.PaperMode() {
		t.Fatal("outline_writer observation should enable paper mode")
	}
}

func TestSectionResetOnNewOutline(t *testing.T) {
	s := store.New()
	e, _, _ := newTestEngine(s)

	e.OnMessage(commit(s, "o1", protocol.AgentOutlineWriter, "# Outline 1"))
	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, "A"))
	e.OnMessage(commit(s, "o2", protocol.AgentOutlineWriter, "# Outline 2"))
	e.OnMessage(commit(s, "p2", protocol.AgentPaperWriter, "B"))

	if got := e.Sections(); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("Sections = %v, want [B]", got)
	}
	if e.OutlineID() != "o2" {
		t.Fatalf("OutlineID = %q, want o2", e.OutlineID())
	}
}

func TestStructuredSectionPayloadPreferred(t *testing.T) {
	s := store.New()
	e, _, _ := newTestEngine(s)

	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, `{"title":"Intro","content":"section body"}`))
	e.OnMessage(commit(s, "p2", protocol.AgentPaperWriter, "not json at all"))
	e.OnMessage(commit(s, "p3", protocol.AgentPaperWriter, `{"title":"no content field"}`))

	want := []string{"section body", "not json at all", `{"title":"no content field"}`}
	if got := e.Sections(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Sections = %v, want %v", got, want)
	}
}

func TestCommitObservedOncePerMessage(t *testing.T) {
	s := store.New()
	e, sched, _ := newTestEngine(s)

	o := commit(s, "o1", protocol.AgentOutlineWriter, "# O")
	e.OnMessage(o)
	p := commit(s, "p1", protocol.AgentPaperWriter, "Section A")
	e.OnMessage(p)
	// A late tool result resolving onto the committed message delivers it to
	// the engine again.
	e.OnMessage(p)

	if got := e.Sections(); !reflect.DeepEqual(got, []string{"Section A"}) {
		t.Fatalf("Sections = %v, want [Section A]", got)
	}
	if len(sched.pending) != 1 {
		t.Errorf("pending evaluations = %d, want 1", len(sched.pending))
	}

	// Nor may a re-observed outline reset the accumulated sections.
	e.OnMessage(o)
	if got := e.Sections(); !reflect.DeepEqual(got, []string{"Section A"}) {
		t.Fatalf("Sections after outline redelivery = %v, want [Section A]", got)
	}
}

func TestCompletionFiresOnceForOverlappingWindows(t *testing.T) {
	s := store.New()
	e, sched, gw := newTestEngine(s)

	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, "A"))
	e.OnMessage(commit(s, "r1", protocol.AgentReferencesWriter, "[1] ref"))

	if len(sched.pending) != 2 {
		t.Fatalf("pending evaluations = %d, want 2", len(sched.pending))
	}
	// Both debounce windows fire; the second must observe the in-flight fetch.
	sched.fireAll()

	if len(gw.fetches) != 1 {
		t.Fatalf("fetches = %v, want exactly one", gw.fetches)
	}
	if gw.fetches[0] != "t1" {
		t.Fatalf("fetch thread = %q, want t1", gw.fetches[0])
	}
}

func TestCompletionNoopWhenArtifactPresent(t *testing.T) {
	s := store.New()
	e, sched, gw := newTestEngine(s)
	gw.present = true

	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, "A"))
	e.OnMessage(commit(s, "r1", protocol.AgentReferencesWriter, "[1]"))
	sched.fireAll()

	if len(gw.fetches) != 0 {
		t.Fatalf("fetches = %v, want none when artifact already present", gw.fetches)
	}
}

func TestCompletionBlockedByStreamingReferences(t *testing.T) {
	s := store.New()
	e, sched, gw := newTestEngine(s)

	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, "A"))
	e.OnMessage(commit(s, "r1", protocol.AgentReferencesWriter, "[1]"))
	streaming(s, "r2", protocol.AgentReferencesWriter)
	sched.fireAll()

	if len(gw.fetches) != 0 {
		t.Fatalf("fetches = %v, want none while a references_writer streams", gw.fetches)
	}
}

func TestCompletionBlockedByAnyStreamingMessage(t *testing.T) {
	s := store.New()
	e, sched, gw := newTestEngine(s)

	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, "A"))
	e.OnMessage(commit(s, "r1", protocol.AgentReferencesWriter, "[1]"))
	streaming(s, "x1", protocol.AgentResearcher)
	sched.fireAll()

	if len(gw.fetches) != 0 {
		t.Fatalf("fetches = %v, want none while any message streams", gw.fetches)
	}
}

func TestCompletionRequiresCommittedReferences(t *testing.T) {
	s := store.New()
	e, sched, gw := newTestEngine(s)

	// Sections done but references never ran.
	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, "A"))
	sched.fireAll()

	if len(gw.fetches) != 0 {
		t.Fatalf("fetches = %v, want none without a committed references_writer", gw.fetches)
	}
}

func TestRetryAfterFailedFetch(t *testing.T) {
	s := store.New()
	e, sched, gw := newTestEngine(s)

	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, "A"))
	e.OnMessage(commit(s, "r1", protocol.AgentReferencesWriter, "[1]"))
	sched.fireAll()
	if len(gw.fetches) != 1 {
		t.Fatalf("fetches = %v, want one", gw.fetches)
	}

	// The fetch failed: no artifact, nothing in flight anymore. A later
	// qualifying commit may retry.
	gw.inFlight = false
	e.OnMessage(commit(s, "r2", protocol.AgentReferencesWriter, "[2]"))
	sched.fireAll()

	if len(gw.fetches) != 2 {
		t.Fatalf("fetches = %v, want a retry after failure", gw.fetches)
	}
}

func TestReset(t *testing.T) {
	s := store.New()
	e, _, _ := newTestEngine(s)

	e.OnMessage(commit(s, "o1", protocol.AgentOutlineWriter, "# O"))
	e.OnMessage(commit(s, "p1", protocol.AgentPaperWriter, "A"))
	e.SetCompletedPaper("f1")
	e.Reset()

	if e.PaperMode() || e.OutlineID() != "" || len(e.Sections()) != 0 || e.CompletedPaperID() != "" {
		t.Fatal("Reset did not clear derived state")
	}
}

func TestEstimateSections(t *testing.T) {
	tests := []struct {
		name    string
		outline string
		want    int
	}{
		{name: "empty", outline: "", want: 2},
		{name: "plain prose", outline: "just a paragraph of text", want: 2},
		{name: "markdown headings", outline: "# T\n## A\n## B\n## C\n", want: 4},
		{name: "numbered list", outline: "1. Intro\n2. Methods\n3. Results\n", want: 3},
		{name: "cjk chapters", outline: "第一章 引言 第二章 方法 第三章 结论", want: 3},
		{name: "clamped high", outline: "1. a\n2. b\n3. c\n4. d\n5. e\n6. f\n7. g\n8. h\n9. i\n10. j\n", want: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateSections(tt.outline); got != tt.want {
				t.Fatalf("EstimateSections() = %d, want %d", got, tt.want)
			}
		})
	}
}

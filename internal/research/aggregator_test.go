package research

import (
	"reflect"
	"testing"

	"github.com/scrybe-cli/scrybe/internal/merge"
	"github.com/scrybe-cli/scrybe/internal/store"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// feed runs events through the merge engine and aggregator the way the
// session does: one increment at a time, aggregation after each commit.
func feed(t *testing.T, s *store.Store, a *Aggregator, evs ...protocol.Event) {
	t.Helper()
	e := merge.New(s)
	for _, ev := range evs {
		if msg := e.Apply(ev); msg != nil {
			a.OnMessage(msg)
		}
	}
}

func plannerThenResearcher() []protocol.Event {
	return []protocol.Event{
		{Kind: protocol.KindStart, MessageID: "m1", Agent: protocol.AgentPlanner},
		{Kind: protocol.KindContentDelta, MessageID: "m1", DeltaText: `{"title":"X"}`},
		{Kind: protocol.KindFinish, MessageID: "m1"},
		{Kind: protocol.KindStart, MessageID: "m2", Agent: protocol.AgentResearcher},
		{Kind: protocol.KindFinish, MessageID: "m2"},
	}
}

func TestResearchStartsAfterPlanner(t *testing.T) {
	s := store.New()
	a := New(s, nil)

	feed(t, s, a, plannerThenResearcher()...)

	ids := s.ResearchIDs()
	if len(ids) != 1 || ids[0] != "m2" {
		t.Fatalf("ResearchIDs = %v, want [m2]", ids)
	}
	r, _ := s.Research("m2")
	if r.PlanMessageID != "m1" {
		t.Errorf("PlanMessageID = %q, want m1", r.PlanMessageID)
	}
	if want := []string{"m1", "m2"}; !reflect.DeepEqual(r.ActivityMessageIDs, want) {
		t.Errorf("ActivityMessageIDs = %v, want %v", r.ActivityMessageIDs, want)
	}
	if r.ReportMessageID != "" {
		t.Errorf("ReportMessageID = %q, want none", r.ReportMessageID)
	}
	if s.OngoingResearchID() != "m2" {
		t.Errorf("OngoingResearchID = %q, want m2", s.OngoingResearchID())
	}
	if s.OpenResearchID() != "m2" {
		t.Errorf("OpenResearchID = %q, want m2", s.OpenResearchID())
	}
}

func TestAtMostOneOngoingResearch(t *testing.T) {
	s := store.New()
	a := New(s, nil)

	feed(t, s, a,
		protocol.Event{Kind: protocol.KindStart, MessageID: "m1", Agent: protocol.AgentPlanner},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m1"},
		protocol.Event{Kind: protocol.KindStart, MessageID: "m2", Agent: protocol.AgentResearcher},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m2"},
		protocol.Event{Kind: protocol.KindStart, MessageID: "m3", Agent: protocol.AgentCoder},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m3"},
	)

	if got := s.ResearchIDs(); len(got) != 1 {
		t.Fatalf("ResearchIDs = %v, want a single unit", got)
	}
	r, _ := s.Research("m2")
	if want := []string{"m1", "m2", "m3"}; !reflect.DeepEqual(r.ActivityMessageIDs, want) {
		t.Errorf("ActivityMessageIDs = %v, want %v", r.ActivityMessageIDs, want)
	}
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	s := store.New()
	a := New(s, nil)

	feed(t, s, a, plannerThenResearcher()...)
	// The same committed message observed again must not duplicate the id.
	msg, _ := s.Message("m2")
	a.OnMessage(msg)

	r, _ := s.Research("m2")
	if want := []string{"m1", "m2"}; !reflect.DeepEqual(r.ActivityMessageIDs, want) {
		t.Errorf("ActivityMessageIDs = %v, want %v", r.ActivityMessageIDs, want)
	}
}

func TestReporterCommitClosesUnit(t *testing.T) {
	s := store.New()
	a := New(s, nil)

	feed(t, s, a, plannerThenResearcher()...)
	feed(t, s, a,
		protocol.Event{Kind: protocol.KindStart, MessageID: "m3", Agent: protocol.AgentReporter},
		protocol.Event{Kind: protocol.KindContentDelta, MessageID: "m3", DeltaText: "report body"},
	)

	r, _ := s.Research("m2")
	if r.ReportMessageID != "m3" {
		t.Fatalf("ReportMessageID = %q, want m3", r.ReportMessageID)
	}
	if s.OngoingResearchID() != "m2" {
		t.Fatal("streaming report must not close the unit")
	}
	if got := s.ResearchState("m2"); got != store.ResearchStateGeneratingReport {
		t.Errorf("state = %q, want %q", got, store.ResearchStateGeneratingReport)
	}

	feed(t, s, a, protocol.Event{Kind: protocol.KindFinish, MessageID: "m3"})
	if s.OngoingResearchID() != "" {
		t.Error("committed report should close the ongoing unit")
	}
	if got := s.ResearchState("m2"); got != store.ResearchStateReportGenerated {
		t.Errorf("state = %q, want %q", got, store.ResearchStateReportGenerated)
	}
}

func TestReporterCommitKeepsUnitInPaperMode(t *testing.T) {
	s := store.New()
	a := New(s, func() bool { return true })

	feed(t, s, a, plannerThenResearcher()...)
	feed(t, s, a,
		protocol.Event{Kind: protocol.KindStart, MessageID: "m3", Agent: protocol.AgentReporter},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m3"},
	)

	if s.OngoingResearchID() != "m2" {
		t.Error("paper-writing pipeline owns completion; report commit must not close the unit")
	}
}

func TestPaperAgentsJoinResearch(t *testing.T) {
	s := store.New()
	a := New(s, func() bool { return true })

	feed(t, s, a,
		protocol.Event{Kind: protocol.KindStart, MessageID: "m1", Agent: protocol.AgentPlanner},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m1"},
		protocol.Event{Kind: protocol.KindStart, MessageID: "m2", Agent: protocol.AgentOutlineWriter},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m2"},
		protocol.Event{Kind: protocol.KindStart, MessageID: "m3", Agent: protocol.AgentPaperWriter},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m3"},
		protocol.Event{Kind: protocol.KindStart, MessageID: "m4", Agent: protocol.AgentReferencesWriter},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m4"},
	)

	r, ok := s.Research("m2")
	if !ok {
		t.Fatal("outline_writer should trigger a research unit")
	}
	if want := []string{"m1", "m2", "m3", "m4"}; !reflect.DeepEqual(r.ActivityMessageIDs, want) {
		t.Errorf("ActivityMessageIDs = %v, want %v", r.ActivityMessageIDs, want)
	}
}

func TestUserAndPlainAssistantMessagesIgnored(t *testing.T) {
	s := store.New()
	a := New(s, nil)

	s.AppendMessage(&store.Message{ID: "u1", Role: store.RoleUser, Content: "hi"})
	msg, _ := s.Message("u1")
	a.OnMessage(msg)

	s.AppendMessage(&store.Message{ID: "a1", Role: store.RoleAssistant})
	msg, _ = s.Message("a1")
	a.OnMessage(msg)

	if got := s.ResearchIDs(); len(got) != 0 {
		t.Fatalf("ResearchIDs = %v, want none", got)
	}
}

func TestMissingPlannerPanics(t *testing.T) {
	s := store.New()
	a := New(s, nil)

	s.AppendMessage(&store.Message{ID: "m1", Role: store.RoleAssistant, Agent: protocol.AgentResearcher})
	msg, _ := s.Message("m1")

	defer func() {
		if recover() == nil {
			t.Fatal("activity without a prior planner message should panic")
		}
	}()
	a.OnMessage(msg)
}

func TestClosedUnitNotReopenedByLateDelivery(t *testing.T) {
	s := store.New()
	a := New(s, nil)

	feed(t, s, a, plannerThenResearcher()...)
	feed(t, s, a,
		protocol.Event{Kind: protocol.KindStart, MessageID: "m3", Agent: protocol.AgentReporter},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m3"},
	)
	if s.OngoingResearchID() != "" {
		t.Fatal("committed report should close the unit")
	}

	// A late tool result resolving onto a member delivers it again after the
	// unit closed. m2 is the unit's trigger id, the worst case: starting over
	// it would re-open the closed unit.
	msg, _ := s.Message("m2")
	a.OnMessage(msg)

	if got := s.OngoingResearchID(); got != "" {
		t.Errorf("OngoingResearchID = %q, want closed unit left closed", got)
	}
	if got := s.ResearchIDs(); !reflect.DeepEqual(got, []string{"m2"}) {
		t.Errorf("ResearchIDs = %v, want [m2]", got)
	}
}

func TestSecondResearchAfterFirstCloses(t *testing.T) {
	s := store.New()
	a := New(s, nil)

	feed(t, s, a, plannerThenResearcher()...)
	feed(t, s, a,
		protocol.Event{Kind: protocol.KindStart, MessageID: "m3", Agent: protocol.AgentReporter},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m3"},
		// A new planning round begins.
		protocol.Event{Kind: protocol.KindStart, MessageID: "m4", Agent: protocol.AgentPlanner},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m4"},
		protocol.Event{Kind: protocol.KindStart, MessageID: "m5", Agent: protocol.AgentResearcher},
		protocol.Event{Kind: protocol.KindFinish, MessageID: "m5"},
	)

	ids := s.ResearchIDs()
	if want := []string{"m2", "m5"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ResearchIDs = %v, want %v", ids, want)
	}
	second, _ := s.Research("m5")
	if second.PlanMessageID != "m4" {
		t.Errorf("second unit PlanMessageID = %q, want m4", second.PlanMessageID)
	}
	if s.OngoingResearchID() != "m5" {
		t.Errorf("OngoingResearchID = %q, want m5", s.OngoingResearchID())
	}
}

// Package research infers collapsible research units from the message stream.
//
// The backend never announces a grouping: a run of agent activity messages
// that follows a planner message is folded into one Research unit so the
// frontend can collapse it. The unit tracks its plan message, its terminal
// report message, and whether it is still accumulating activity.
package research

import (
	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/internal/store"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// activityAgents are the tags whose messages belong inside a research unit.
var activityAgents = map[string]bool{
	protocol.AgentResearcher:       true,
	protocol.AgentCoder:            true,
	protocol.AgentThinking:         true,
	protocol.AgentReporter:         true,
	protocol.AgentOutlineWriter:    true,
	protocol.AgentPaperWriter:      true,
	protocol.AgentReferencesWriter: true,
}

// IsActivity reports whether messages from agent belong to a research unit.
func IsActivity(agent string) bool {
	return activityAgents[agent]
}

// Aggregator groups agent activity messages under research units.
type Aggregator struct {
	store *store.Store

	// paperMode reports whether the paper-writing pipeline owns completion.
	// While it does, a committed report must not close the ongoing unit; the
	// pipeline's own completion signal governs closing instead.
	paperMode func() bool
}

// New returns an aggregator over s. paperMode may be nil.
func New(s *store.Store, paperMode func() bool) *Aggregator {
	if paperMode == nil {
		paperMode = func() bool { return false }
	}
	return &Aggregator{store: s, paperMode: paperMode}
}

// OnMessage attaches msg to the ongoing research unit, starting one if none
// is ongoing. Called for every merged increment, streaming or committed, so
// it is idempotent on duplicate delivery.
func (a *Aggregator) OnMessage(msg *store.Message) {
	if msg.Role != store.RoleAssistant || !IsActivity(msg.Agent) {
		return
	}

	ongoing := a.store.OngoingResearchID()

	// A committed member can be observed again after its unit closed, e.g.
	// when a late tool result resolves onto it. The closed unit stays closed;
	// only unclaimed messages may start a new one.
	if owner := a.unitOf(msg.ID); owner != "" && owner != ongoing {
		return
	}

	if ongoing == "" {
		ongoing = a.start(msg)
	} else {
		a.attach(ongoing, msg.ID)
	}

	if msg.Agent == protocol.AgentReporter {
		a.setReport(ongoing, msg.ID)

		// The unit is finished once its report commits — unless paper-writing
		// is running, which closes the unit on its own terms. The finished
		// unit stays in history, togglable open/closed by the user.
		if !msg.IsStreaming && !a.paperMode() {
			a.store.SetOngoingResearch("")
			debug.LogKV("research", "unit closed on report commit", "research_id", ongoing)
		}
	}
}

// start creates a new unit triggered by msg. The nearest prior planner
// message anchors it; a missing planner means the upstream ordering broke,
// which is a logic fault, so it panics rather than degrading silently.
func (a *Aggregator) start(msg *store.Message) string {
	planID := a.findPlanMessage(msg.ID)

	r := &store.Research{
		ID:                 msg.ID,
		PlanMessageID:      planID,
		ActivityMessageIDs: []string{planID, msg.ID},
	}
	if err := a.store.AppendResearch(r); err != nil {
		// The unit already exists for this trigger id (duplicate delivery);
		// just re-open it.
		debug.LogKV("research", "re-opening existing unit", "research_id", msg.ID)
	}
	a.store.SetOngoingResearch(msg.ID)
	a.store.SetOpenResearch(msg.ID)
	debug.LogKV("research", "unit started",
		"research_id", msg.ID,
		"plan_message_id", planID,
		"agent", msg.Agent,
	)
	return msg.ID
}

// attach appends messageID to the ongoing unit's activity list if absent.
func (a *Aggregator) attach(researchID, messageID string) {
	r, ok := a.store.Research(researchID)
	if !ok {
		panic("research: ongoing research " + researchID + " missing from store")
	}
	for _, id := range r.ActivityMessageIDs {
		if id == messageID {
			return
		}
	}
	next := r.Clone()
	next.ActivityMessageIDs = append(next.ActivityMessageIDs, messageID)
	a.store.UpdateResearch(next)
}

// setReport records messageID as the unit's report. Last writer wins.
func (a *Aggregator) setReport(researchID, messageID string) {
	r, ok := a.store.Research(researchID)
	if !ok {
		return
	}
	if r.ReportMessageID == messageID {
		return
	}
	next := r.Clone()
	next.ReportMessageID = messageID
	a.store.UpdateResearch(next)
}

// unitOf returns the id of the unit whose activity list claims messageID, or
// "" when no unit does.
func (a *Aggregator) unitOf(messageID string) string {
	for _, rid := range a.store.ResearchIDs() {
		r, ok := a.store.Research(rid)
		if !ok {
			continue
		}
		for _, id := range r.ActivityMessageIDs {
			if id == messageID {
				return rid
			}
		}
	}
	return ""
}

// findPlanMessage scans the ordered message list in reverse from the trigger
// for the nearest prior planner message. Linear scan is fine for bounded
// session sizes.
func (a *Aggregator) findPlanMessage(triggerID string) string {
	ids := a.store.MessageIDs()
	start := len(ids) - 1
	for i, id := range ids {
		if id == triggerID {
			start = i - 1
			break
		}
	}
	for i := start; i >= 0; i-- {
		msg, ok := a.store.Message(ids[i])
		if !ok {
			continue
		}
		if msg.Agent == protocol.AgentPlanner {
			return msg.ID
		}
	}
	panic("research: no planner message precedes activity message " + triggerID)
}

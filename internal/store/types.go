package store

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCall is one tool invocation recorded on a message. Args and Result
// accumulate as delta events arrive.
type ToolCall struct {
	ID     string
	Name   string
	Args   string
	Result string
}

// Message is the unit of conversational content. Instances held by the Store
// are treated as immutable snapshots: mutations go through Clone + Update so
// concurrent readers never observe a half-applied increment.
type Message struct {
	ID       string
	ThreadID string
	Role     string
	Agent    string

	// Content is the accumulated text. ContentChunks keeps the raw fragments
	// in arrival order for diagnostics and replay; the two need not match
	// byte-for-byte when content was synthesized locally.
	Content       string
	ContentChunks []string

	ToolCalls []ToolCall

	// IsStreaming is true while more increments are expected. Once it turns
	// false it never reverts for the same id.
	IsStreaming  bool
	FinishReason string

	// InterruptFeedback echoes the option the user chose in response to an
	// interrupt finish.
	InterruptFeedback string
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	next := *m
	if m.ContentChunks != nil {
		next.ContentChunks = append([]string(nil), m.ContentChunks...)
	}
	if m.ToolCalls != nil {
		next.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return &next
}

// Research is an inferred, collapsible grouping of one planning message plus
// the activity messages that follow it. It references messages by id only;
// the Store owns the entities.
type Research struct {
	// ID equals the id of the message that triggered the grouping.
	ID string

	// PlanMessageID is the nearest prior planner message, fixed at start.
	PlanMessageID string

	// ActivityMessageIDs lists member message ids in arrival order, seeded
	// with [PlanMessageID, ID].
	ActivityMessageIDs []string

	// ReportMessageID is set when a reporter message arrives inside the unit.
	ReportMessageID string
}

// Clone returns a deep copy of the research unit.
func (r *Research) Clone() *Research {
	next := *r
	if r.ActivityMessageIDs != nil {
		next.ActivityMessageIDs = append([]string(nil), r.ActivityMessageIDs...)
	}
	return &next
}

// Research display states derived from the report message.
const (
	ResearchStateResearching      = "researching"
	ResearchStateGeneratingReport = "generating report"
	ResearchStateReportGenerated  = "report generated"
)

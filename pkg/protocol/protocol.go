// Package protocol defines the wire contract between scrybe and the research
// backend.
//
// The backend streams a response as a sequence of incremental events, each
// tied to a message id. Events arrive over SSE or WebSocket; either way the
// payload is one JSON-encoded Event per increment. The backend never sends an
// explicit "pipeline done" signal — higher-level completion is inferred
// client-side (see internal/workflow).
package protocol

// Event kinds emitted by the backend chat stream.
const (
	KindStart          = "start"
	KindContentDelta   = "content-delta"
	KindToolCallStart  = "tool-call-start"
	KindToolCallDelta  = "tool-call-delta"
	KindToolCallResult = "tool-call-result"
	KindFinish         = "finish"
)

// Agent tags identifying which backend role produced a message.
const (
	AgentPlanner          = "planner"
	AgentResearcher       = "researcher"
	AgentCoder            = "coder"
	AgentThinking         = "thinking"
	AgentReporter         = "reporter"
	AgentOutlineWriter    = "outline_writer"
	AgentPaperWriter      = "paper_writer"
	AgentReferencesWriter = "references_writer"
	AgentPodcast          = "podcast"
	AgentFinalPaper       = "final_paper"
)

// FinishReasonInterrupt marks a response paused for user feedback.
const FinishReasonInterrupt = "interrupt"

// Event is one increment of a streamed response.
//
// Kind selects which optional fields are meaningful: start carries
// role/agent/thread metadata, content-delta carries DeltaText, the tool-call
// kinds carry ToolCallID (and ToolCallName on start, DeltaText for
// argument/result text), finish carries FinishReason.
type Event struct {
	Kind         string `json:"kind"`
	MessageID    string `json:"message_id"`
	ThreadID     string `json:"thread_id,omitempty"`
	Agent        string `json:"agent,omitempty"`
	Role         string `json:"role,omitempty"`
	DeltaText    string `json:"delta_text,omitempty"`
	ToolCallID   string `json:"tool_call_id,omitempty"`
	ToolCallName string `json:"tool_call_name,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ChatRequest starts a response. All numeric and boolean knobs come from the
// user's config file, not from code.
type ChatRequest struct {
	Content                       string         `json:"content"`
	ThreadID                      string         `json:"thread_id"`
	InterruptFeedback             string         `json:"interrupt_feedback,omitempty"`
	AutoAcceptedPlan              bool           `json:"auto_accepted_plan"`
	EnableBackgroundInvestigation bool           `json:"enable_background_investigation"`
	MaxPlanIterations             int            `json:"max_plan_iterations"`
	MaxStepNum                    int            `json:"max_step_num"`
	MaxSearchResults              int            `json:"max_search_results"`
	MCPSettings                   map[string]any `json:"mcp_settings,omitempty"`
}

// FinalPaperResponse is the compiled document returned once the paper-writing
// pipeline has finished.
type FinalPaperResponse struct {
	FinalPaper       string `json:"final_paper"`
	Status           string `json:"status"`
	PaperWritingMode bool   `json:"paper_writing_mode"`
}

// SectionPayload is the structured record a paper_writer message may carry in
// its content. All fields are optional; callers must fall back to the raw
// message text when decoding fails or Content is empty.
type SectionPayload struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// PodcastRequest asks the backend to narrate a research report.
type PodcastRequest struct {
	Content string `json:"content"`
}

// PodcastResponse carries the generated audio reference or an error string.
type PodcastResponse struct {
	AudioURL string `json:"audio_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Package merge folds incremental stream events into the conversation model.
//
// The engine turns the sequence of typed increments for a logical message into
// one growing Message: the first event referencing a new id synthesizes a
// streaming Message and registers it, every later event folds into a copy and
// commits it through the store. Merging is associative and tolerates duplicate
// delivery of a finish event.
package merge

import (
	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/internal/store"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// Engine applies chat stream increments to the entity store.
type Engine struct {
	store *store.Store
}

// New returns an engine writing into s.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Apply folds a single increment into the model and returns the message it
// landed on, or nil when the event was dropped (a duplicate finish, or a
// tool-call-result with an unknown id). Events are applied one at a time to
// completion; the caller serializes them.
func (e *Engine) Apply(ev protocol.Event) *store.Message {
	// Tool results are addressed by tool call id, not by the head message:
	// the owning message may belong to an earlier, already-committed turn.
	if ev.Kind == protocol.KindToolCallResult {
		return e.resolveToolCall(ev)
	}

	msg, ok := e.store.Message(ev.MessageID)
	if !ok {
		msg = &store.Message{
			ID:          ev.MessageID,
			ThreadID:    ev.ThreadID,
			Role:        ev.Role,
			Agent:       ev.Agent,
			IsStreaming: true,
		}
		if msg.Role == "" {
			msg.Role = store.RoleAssistant
		}
		if err := e.store.AppendMessage(msg); err != nil {
			// Cannot happen: append is only reached when the id is absent.
			debug.LogKV("merge", "append raced", "message_id", ev.MessageID, "err", err)
			return nil
		}
	}

	next := msg.Clone()
	switch ev.Kind {
	case protocol.KindStart:
		// Metadata refresh; the synthesized message already carries it when
		// the start was the first event.
		if ev.Role != "" {
			next.Role = ev.Role
		}
		if ev.Agent != "" {
			next.Agent = ev.Agent
		}
		if ev.ThreadID != "" {
			next.ThreadID = ev.ThreadID
		}

	case protocol.KindContentDelta:
		next.Content += ev.DeltaText
		next.ContentChunks = append(next.ContentChunks, ev.DeltaText)

	case protocol.KindToolCallStart:
		if findToolCall(next.ToolCalls, ev.ToolCallID) < 0 {
			next.ToolCalls = append(next.ToolCalls, store.ToolCall{
				ID:   ev.ToolCallID,
				Name: ev.ToolCallName,
			})
		}

	case protocol.KindToolCallDelta:
		i := findToolCall(next.ToolCalls, ev.ToolCallID)
		if i < 0 {
			// A delta may beat its start on some backends; create the slot.
			next.ToolCalls = append(next.ToolCalls, store.ToolCall{
				ID:   ev.ToolCallID,
				Name: ev.ToolCallName,
			})
			i = len(next.ToolCalls) - 1
		}
		next.ToolCalls[i].Args += ev.DeltaText

	case protocol.KindFinish:
		if !msg.IsStreaming {
			// Duplicate finish: the commit already happened and derived state
			// must not observe it again.
			debug.LogKV("merge", "dropping duplicate finish", "message_id", msg.ID)
			return nil
		}
		next.IsStreaming = false
		next.FinishReason = ev.FinishReason
		debug.LogKV("merge", "message committed",
			"message_id", next.ID,
			"agent", next.Agent,
			"finish_reason", next.FinishReason,
		)

	default:
		debug.LogKV("merge", "ignoring unknown event kind", "kind", ev.Kind, "message_id", ev.MessageID)
		return msg
	}

	e.store.UpdateMessage(next)
	return next
}

// Finalize marks the message as no longer streaming without a finish reason.
// Used when the transport fails or the response is cancelled mid-stream;
// partially merged content is kept, not rolled back. No-op on unknown or
// already-committed messages.
func (e *Engine) Finalize(messageID string) *store.Message {
	msg, ok := e.store.Message(messageID)
	if !ok || !msg.IsStreaming {
		return msg
	}
	next := msg.Clone()
	next.IsStreaming = false
	e.store.UpdateMessage(next)
	debug.LogKV("merge", "message finalized without finish", "message_id", messageID)
	return next
}

// FinalizeAll commits every still-streaming message in one batch. Used when a
// response ends while several interleaved messages are open.
func (e *Engine) FinalizeAll() {
	var open []*store.Message
	for _, id := range e.store.MessageIDs() {
		msg, ok := e.store.Message(id)
		if !ok || !msg.IsStreaming {
			continue
		}
		next := msg.Clone()
		next.IsStreaming = false
		open = append(open, next)
	}
	if len(open) > 0 {
		e.store.UpdateMessages(open)
	}
}

// resolveToolCall locates the message owning the tool call id, scanning the
// ordered message list newest-first so lookups cover messages from earlier,
// already-completed responses. Unknown ids are silently dropped (logged in
// debug mode only).
func (e *Engine) resolveToolCall(ev protocol.Event) *store.Message {
	ids := e.store.MessageIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		msg, ok := e.store.Message(ids[i])
		if !ok {
			continue
		}
		j := findToolCall(msg.ToolCalls, ev.ToolCallID)
		if j < 0 {
			continue
		}
		next := msg.Clone()
		next.ToolCalls[j].Result += ev.DeltaText
		e.store.UpdateMessage(next)
		return next
	}
	debug.LogKV("merge", "dropping result for unknown tool call", "tool_call_id", ev.ToolCallID)
	return nil
}

func findToolCall(calls []store.ToolCall, id string) int {
	for i := range calls {
		if calls[i].ID == id {
			return i
		}
	}
	return -1
}

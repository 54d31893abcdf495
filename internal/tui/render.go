package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/scrybe-cli/scrybe/internal/podcast"
	"github.com/scrybe-cli/scrybe/internal/store"
	"github.com/scrybe-cli/scrybe/internal/workflow"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// renderConversation lays out the whole thread: plain messages in order,
// research units folded into collapsible blocks, and a progress line while
// the paper pipeline runs.
func (m *Model) renderConversation(width int) string {
	st := m.sess.Store()
	if width < 20 {
		width = 20
	}

	memberOf := map[string]string{}
	for _, rid := range st.ResearchIDs() {
		unit, ok := st.Research(rid)
		if !ok {
			continue
		}
		for _, mid := range unit.ActivityMessageIDs {
			memberOf[mid] = rid
		}
	}

	var b strings.Builder
	rendered := map[string]bool{}
	for _, id := range st.MessageIDs() {
		if rendered[id] {
			continue
		}
		if rid, ok := memberOf[id]; ok {
			unit, found := st.Research(rid)
			if found {
				m.renderResearch(&b, st, unit, width, rendered)
				continue
			}
		}
		msg, ok := st.Message(id)
		if !ok {
			continue
		}
		m.renderMessage(&b, msg, width, "")
		rendered[id] = true
	}

	if line := m.paperProgress(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// renderResearch draws one collapsible unit. The header always shows; the
// member messages only when expanded.
func (m *Model) renderResearch(b *strings.Builder, st *store.Store, unit *store.Research, width int, rendered map[string]bool) {
	for _, mid := range unit.ActivityMessageIDs {
		rendered[mid] = true
	}

	state := st.ResearchState(unit.ID)
	marker := "▸"
	if !m.collapsed[unit.ID] {
		marker = "▾"
	}
	title := "Research"
	if plan, ok := st.Message(unit.PlanMessageID); ok {
		title = firstLine(plan.Content, "Research")
	}
	header := fmt.Sprintf("%s %s", marker, title)
	b.WriteString(researchStyle.Render(ansi.Truncate(header, width-12, "...")))
	b.WriteString(dimStyle.Render("  [" + state + "]"))
	b.WriteString("\n")

	if m.collapsed[unit.ID] {
		return
	}
	for _, mid := range unit.ActivityMessageIDs {
		msg, ok := st.Message(mid)
		if !ok {
			continue
		}
		m.renderMessage(b, msg, width-2, "  ")
	}
}

// renderMessage draws a single message with the given left indent.
func (m *Model) renderMessage(b *strings.Builder, msg *store.Message, width int, indent string) {
	switch {
	case msg.Role == store.RoleUser:
		b.WriteString(indent)
		b.WriteString(userStyle.Render("you"))
		b.WriteString("\n")
		writeWrapped(b, msg.Content, width, indent, bodyStyle)

	case msg.Agent == protocol.AgentFinalPaper:
		b.WriteString(indent)
		b.WriteString(paperStyle.Render("final paper"))
		b.WriteString("\n")
		writeWrapped(b, msg.Content, width, indent, bodyStyle)

	case msg.Agent == protocol.AgentPodcast:
		b.WriteString(indent)
		b.WriteString(agentStyle.Render("podcast"))
		b.WriteString("\n")
		var res podcast.Result
		if err := json.Unmarshal([]byte(msg.Content), &res); err == nil {
			if res.Error != "" {
				writeWrapped(b, "generation failed: "+res.Error, width, indent, errStyle)
			} else {
				writeWrapped(b, res.Title+"\n"+res.AudioURL, width, indent, bodyStyle)
			}
		} else {
			writeWrapped(b, msg.Content, width, indent, bodyStyle)
		}

	default:
		label := msg.Agent
		if label == "" {
			label = "assistant"
		}
		b.WriteString(indent)
		b.WriteString(agentStyle.Render(label))
		if msg.IsStreaming {
			b.WriteString(dimStyle.Render(" …"))
		}
		b.WriteString("\n")
		if msg.Content != "" {
			writeWrapped(b, msg.Content, width, indent, bodyStyle)
		}
		for _, tc := range msg.ToolCalls {
			line := "⚙ " + tc.Name
			if tc.Args != "" {
				line += " " + tc.Args
			}
			b.WriteString(indent)
			b.WriteString(toolStyle.Render(ansi.Truncate(line, width-len(indent), "...")))
			b.WriteString("\n")
			if tc.Result != "" {
				b.WriteString(indent)
				b.WriteString(dimStyle.Render(ansi.Truncate("  ↳ "+firstLine(tc.Result, ""), width-len(indent), "...")))
				b.WriteString("\n")
			}
		}
		if msg.FinishReason == protocol.FinishReasonInterrupt && msg.InterruptFeedback == "" {
			b.WriteString(indent)
			b.WriteString(interruptLine.Render("⏸ waiting for your feedback on the plan"))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

// paperProgress renders "writing paper: k/n sections" while the pipeline runs.
func (m *Model) paperProgress() string {
	wf := m.sess.Workflow()
	if !wf.PaperMode() || wf.CompletedPaperID() != "" {
		return ""
	}
	gw := m.sess.Gateway().State()
	if gw.Loading {
		return dimStyle.Render("compiling final paper...")
	}
	if gw.Err != "" {
		return errStyle.Render("final paper: " + gw.Err)
	}

	total := 0
	if outlineID := wf.OutlineID(); outlineID != "" {
		if outline, ok := m.sess.Store().Message(outlineID); ok {
			total = workflow.EstimateSections(outline.Content)
		}
	}
	done := len(wf.Sections())
	if total == 0 {
		return dimStyle.Render("writing paper...")
	}
	if done > total {
		total = done
	}
	return dimStyle.Render(fmt.Sprintf("writing paper: %d/%d sections", done, total))
}

func writeWrapped(b *strings.Builder, text string, width int, indent string, style lipgloss.Style) {
	wrapped := ansi.Wordwrap(text, width-len(indent), " ")
	for _, line := range strings.Split(wrapped, "\n") {
		b.WriteString(indent)
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
}

func firstLine(s, fallback string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.TrimLeft(s, "# "))
	if s == "" {
		return fallback
	}
	return s
}

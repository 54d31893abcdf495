// Package tui is the interactive chat frontend over a session.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/scrybe-cli/scrybe/internal/eventq"
	"github.com/scrybe-cli/scrybe/internal/session"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

type refreshMsg struct{}

type noticeMsg session.Notice

type turnDoneMsg struct{ err error }

type podcastDoneMsg struct{ err error }

// Model is the chat TUI. All conversation state lives in the session; the
// model only holds presentation state (scroll, collapse, pending input).
type Model struct {
	sess *session.Session

	vp    viewport.Model
	input textinput.Model
	spin  spinner.Model

	refresh chan struct{}

	width  int
	height int
	ready  bool

	collapsed map[string]bool
	notice    string
	errText   string
	podcastID string
}

// New builds the chat model over sess and wires store changes into redraws.
func New(sess *session.Session) *Model {
	input := textinput.New()
	input.Placeholder = "Ask a research question..."
	input.Prompt = "> "
	input.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = dimStyle

	m := &Model{
		sess:      sess,
		input:     input,
		spin:      sp,
		refresh:   make(chan struct{}, 1),
		collapsed: map[string]bool{},
	}
	sess.Store().Subscribe(func() {
		eventq.Offer(m.refresh, struct{}{})
	})
	return m
}

// Run starts the program and blocks until the user quits.
func Run(sess *session.Session) error {
	_, err := tea.NewProgram(New(sess), tea.WithAltScreen()).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitRefresh(), m.waitNotice(), textinput.Blink)
}

func (m *Model) waitRefresh() tea.Cmd {
	return func() tea.Msg {
		<-m.refresh
		return refreshMsg{}
	}
}

func (m *Model) waitNotice() tea.Cmd {
	return func() tea.Msg {
		return noticeMsg(<-m.sess.Notices())
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - 5
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = vpHeight
		}
		m.input.Width = msg.Width - 6
		m.redraw(true)
		return m, nil

	case refreshMsg:
		m.redraw(m.vp.AtBottom())
		return m, m.waitRefresh()

	case noticeMsg:
		m.notice = msg.Text
		if msg.Level == "error" {
			m.errText = msg.Text
		}
		return m, m.waitNotice()

	case turnDoneMsg:
		if msg.err != nil && msg.err != session.ErrBusy {
			m.errText = msg.err.Error()
		}
		m.redraw(true)
		return m, nil

	case podcastDoneMsg:
		m.podcastID = ""
		if msg.err != nil {
			m.errText = msg.err.Error()
		}
		m.redraw(true)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.sess.Responding() {
			m.sess.Cancel()
			return m, nil
		}
		return m, tea.Quit

	case "esc":
		if m.sess.Responding() {
			m.sess.Cancel()
		}
		return m, nil

	case "ctrl+n":
		m.sess.NewThread()
		m.collapsed = map[string]bool{}
		m.notice = ""
		m.errText = ""
		m.redraw(true)
		return m, nil

	case "ctrl+a":
		if m.awaitingFeedback() {
			return m, m.send("[accepted] proceed with the plan", "accepted")
		}
		return m, nil

	case "ctrl+p":
		return m, m.startPodcast()

	case "tab":
		m.toggleLatestResearch()
		m.redraw(m.vp.AtBottom())
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.notice = ""
		m.errText = ""
		if m.awaitingFeedback() {
			return m, m.send(text, "edit_plan")
		}
		return m, m.send(text, "")

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send runs the turn on its own goroutine so the UI keeps updating.
func (m *Model) send(content, feedback string) tea.Cmd {
	return func() tea.Msg {
		return turnDoneMsg{err: m.sess.Send(context.Background(), content, feedback, nil)}
	}
}

// startPodcast narrates the most recent research unit that has a report.
func (m *Model) startPodcast() tea.Cmd {
	if m.podcastID != "" {
		return nil
	}
	st := m.sess.Store()
	ids := st.ResearchIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		unit, ok := st.Research(ids[i])
		if !ok || unit.ReportMessageID == "" {
			continue
		}
		id := unit.ID
		m.podcastID = id
		m.notice = "generating podcast..."
		return func() tea.Msg {
			return podcastDoneMsg{err: m.sess.GeneratePodcast(context.Background(), id)}
		}
	}
	m.notice = "no finished research to narrate"
	return nil
}

// awaitingFeedback reports whether the last assistant message paused on an
// interrupt and has not been answered yet.
func (m *Model) awaitingFeedback() bool {
	st := m.sess.Store()
	ids := st.MessageIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		msg, ok := st.Message(ids[i])
		if !ok {
			continue
		}
		if msg.Role != "assistant" {
			continue
		}
		return msg.FinishReason == protocol.FinishReasonInterrupt && msg.InterruptFeedback == ""
	}
	return false
}

func (m *Model) toggleLatestResearch() {
	st := m.sess.Store()
	ids := st.ResearchIDs()
	if len(ids) == 0 {
		return
	}
	id := st.OpenResearchID()
	if id == "" {
		id = ids[len(ids)-1]
	}
	m.collapsed[id] = !m.collapsed[id]
}

func (m *Model) redraw(gotoBottom bool) {
	if !m.ready {
		return
	}
	m.vp.SetContent(m.renderConversation(m.vp.Width))
	if gotoBottom {
		m.vp.GotoBottom()
	}
}

func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderStatusBar() string {
	var parts []string
	switch {
	case m.errText != "":
		parts = append(parts, errStyle.Render(m.errText))
	case m.sess.Responding():
		parts = append(parts, m.spin.View()+dimStyle.Render("researching (esc: stop)"))
	case m.awaitingFeedback():
		parts = append(parts, interruptLine.Render("plan paused: ctrl+a accept, or type feedback and press enter"))
	default:
		parts = append(parts, dimStyle.Render("enter: send  tab: fold research  ctrl+p: podcast  ctrl+n: new thread  ctrl+c: quit"))
	}
	if m.notice != "" && m.errText == "" {
		parts = append(parts, noticeStyle.Render(m.notice))
	}
	return statusBarStyle.Width(m.width).Render(strings.Join(parts, "  "))
}

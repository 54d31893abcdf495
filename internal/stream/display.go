package stream

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// Display formats incremental events for plain terminal output. It is used by
// the one-shot ask command, where no TUI runs.
type Display struct {
	w     io.Writer
	color bool
	mu    sync.Mutex

	needNewline bool
	curAgent    string
}

// NewDisplay creates a Display writing to w. color enables ANSI sequences.
func NewDisplay(w io.Writer, color bool) *Display {
	return &Display{w: w, color: color}
}

func (d *Display) paint(code, s string) string {
	if !d.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Handle formats and writes a single event to the terminal.
func (d *Display) Handle(ev protocol.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case protocol.KindStart:
		d.finishLine()
		if ev.Agent != d.curAgent && ev.Agent != "" {
			fmt.Fprintf(d.w, "%s\n", d.paint("1;36", "["+ev.Agent+"]"))
			d.curAgent = ev.Agent
		}

	case protocol.KindContentDelta:
		if ev.DeltaText != "" {
			fmt.Fprint(d.w, ev.DeltaText)
			d.needNewline = true
		}

	case protocol.KindToolCallStart:
		d.finishLine()
		fmt.Fprintf(d.w, "%s ", d.paint("1;33", "[tool:"+ev.ToolCallName+"]"))
		d.needNewline = true

	case protocol.KindToolCallDelta:
		if ev.DeltaText != "" {
			fmt.Fprint(d.w, d.paint("2", ev.DeltaText))
			d.needNewline = true
		}

	case protocol.KindToolCallResult:
		d.finishLine()
		text := compactWhitespace(ev.DeltaText)
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(d.w, "%s %s\n", d.paint("2", "[tool_result]"), text)

	case protocol.KindFinish:
		d.finishLine()
		switch ev.FinishReason {
		case protocol.FinishReasonInterrupt:
			fmt.Fprintf(d.w, "%s awaiting feedback\n", d.paint("1;35", "[interrupted]"))
		case "":
			fmt.Fprintf(d.w, "%s\n", d.paint("1;32", "[done]"))
		default:
			fmt.Fprintf(d.w, "%s %s\n", d.paint("1;32", "[done]"), ev.FinishReason)
		}

	default:
		if ev.Kind != "" {
			d.finishLine()
			fmt.Fprintf(d.w, "%s\n", d.paint("2", "["+ev.Kind+"]"))
		}
	}
}

// finishLine writes a newline if the previous output didn't end with one.
func (d *Display) finishLine() {
	if d.needNewline {
		fmt.Fprintln(d.w)
		d.needNewline = false
	}
}

// Finish ensures any pending output is terminated with a newline.
func (d *Display) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishLine()
}

// compactWhitespace replaces runs of whitespace with a single space.
func compactWhitespace(s string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		} else {
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return b.String()
}

package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

const maxLineSize = 1024 * 1024 // 1 MB

// Parse reads server-sent events from r and sends parsed events on the
// returned channel. Each SSE record is an optional "event:" line naming the
// increment kind followed by a "data:" line carrying JSON; a blank line
// dispatches the record. Sends block until the consumer is ready so no
// increment is ever dropped; a stalled consumer stalls the read, not the
// model. The channel is closed when the reader reaches EOF or the context is
// cancelled. A read error is reported as a final RawEvent with nil Raw before
// the channel closes.
func Parse(ctx context.Context, r io.Reader) <-chan RawEvent {
	ch := make(chan RawEvent, 64)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

		emit := func(ev RawEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var kind string
		var data []byte

		dispatch := func() bool {
			if len(data) == 0 {
				kind = ""
				return true
			}
			raw := data
			evKind := kind
			kind = ""
			data = nil

			var ev protocol.Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				return emit(RawEvent{Raw: raw, Err: err})
			}
			if ev.Kind == "" {
				ev.Kind = evKind
			}
			return emit(RawEvent{Raw: raw, Parsed: ev})
		}

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := bytes.TrimRight(scanner.Bytes(), "\r")
			switch {
			case len(line) == 0:
				if !dispatch() {
					return
				}
			case bytes.HasPrefix(line, []byte("event:")):
				kind = string(bytes.TrimSpace(line[len("event:"):]))
			case bytes.HasPrefix(line, []byte("data:")):
				payload := bytes.TrimSpace(line[len("data:"):])
				if len(data) > 0 {
					data = append(data, '\n')
				}
				data = append(data, payload...)
			default:
				// Comment lines and unknown fields are ignored per SSE.
			}
		}

		// Flush a record that ended at EOF without a trailing blank line.
		if !dispatch() {
			return
		}

		if err := scanner.Err(); err != nil {
			ch <- RawEvent{Err: err}
		}
	}()
	return ch
}

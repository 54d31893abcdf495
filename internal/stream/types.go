package stream

import "github.com/scrybe-cli/scrybe/pkg/protocol"

// RawEvent holds one server-sent event as received plus its parsed form.
// A non-nil Err with Raw set means the line was malformed and was skipped;
// a non-nil Err with nil Raw means the transport itself failed and the
// stream is over.
type RawEvent struct {
	Raw    []byte
	Parsed protocol.Event
	Err    error
}

// Transport reports whether the error ends the stream rather than one line.
func (e RawEvent) Transport() bool {
	return e.Err != nil && e.Raw == nil
}

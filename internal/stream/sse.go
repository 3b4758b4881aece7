package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// WriteSSE frames one event onto w: an event-type line, a JSON data
// line, and a blank-line terminator.
func WriteSSE(w io.Writer, ev *Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}
	return nil
}

// RawEvent is one decoded frame with its payload left as JSON.
type RawEvent struct {
	Type EventType
	Data json.RawMessage
}

// ErrStreamTruncated is returned when the input ends inside a frame
// without a blank-line terminator.
var ErrStreamTruncated = errors.New("event stream truncated mid-frame")

// Decoder reassembles framed events from a byte stream. It buffers
// internally, so frames split at arbitrary byte boundaries by the
// transport are put back together on the blank-line delimiters.
type Decoder struct {
	s        *bufio.Scanner
	terminal bool
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{s: s}
}

// Next returns the next event, or io.EOF when the stream is done. An
// error event is terminal: any bytes after it are treated as
// malformed and never surfaced.
func (d *Decoder) Next() (*RawEvent, error) {
	if d.terminal {
		return nil, io.EOF
	}

	var ev RawEvent
	seen := false

	for d.s.Scan() {
		line := d.s.Text()

		if line == "" {
			if !seen {
				continue // stray delimiter between frames
			}
			if ev.Type == EventError {
				d.terminal = true
			}
			return &ev, nil
		}

		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Type = EventType(strings.TrimPrefix(line, "event: "))
			seen = true
		case strings.HasPrefix(line, "data: "):
			ev.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
			seen = true
		default:
			// Unknown field (id:, retry:, comments); ignore.
		}
	}

	if err := d.s.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if seen {
		return nil, ErrStreamTruncated
	}
	return nil, io.EOF
}

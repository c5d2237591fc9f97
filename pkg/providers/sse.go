package providers

import (
	"bufio"
	"bytes"
	"io"
)

// maxSSELineSize bounds a single SSE line. Vendors emit one JSON object per
// data line, well under this limit.
const maxSSELineSize = 1 << 20

// SSEEvent is one dispatched server-sent event.
type SSEEvent struct {
	// Event is the value of the "event:" field, empty for unnamed events.
	Event string

	// Data is the concatenation of the event's "data:" lines.
	Data []byte
}

// SSEReader splits an event stream into events. It reads from the
// underlying reader only when Next is called.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader wraps r.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEReader{scanner: scanner}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
func (r *SSEReader) Next() (*SSEEvent, error) {
	var (
		event   string
		data    bytes.Buffer
		hasData bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Bytes()

		if len(line) == 0 {
			if hasData || event != "" {
				return &SSEEvent{Event: event, Data: data.Bytes()}, nil
			}
			continue
		}

		// Comment line, used by some vendors as keep-alive.
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))

		switch string(field) {
		case "event":
			event = string(value)
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Stream closed without a trailing blank line.
	if hasData || event != "" {
		return &SSEEvent{Event: event, Data: data.Bytes()}, nil
	}
	return nil, io.EOF
}

package event

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxLineBytes bounds a single NDJSON line. Event lines are short;
// anything beyond this is a corrupt stream.
const maxLineBytes = 1 << 20

// DecodeError reports a malformed line in an event stream.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("event stream line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder reads NDJSON access events from a stream.
type Decoder struct {
	sc   *bufio.Scanner
	line int
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{sc: sc}
}

// Next returns the next event in the stream. io.EOF signals a cleanly
// ended stream. Blank lines are skipped; any other malformed line is a
// DecodeError carrying its line number.
func (d *Decoder) Next() (AccessEvent, error) {
	for d.sc.Scan() {
		d.line++
		text := strings.TrimSpace(d.sc.Text())
		if text == "" {
			continue
		}
		var ev AccessEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return AccessEvent{}, &DecodeError{Line: d.line, Err: err}
		}
		if err := ev.Validate(); err != nil {
			return AccessEvent{}, &DecodeError{Line: d.line, Err: err}
		}
		return ev, nil
	}
	if err := d.sc.Err(); err != nil {
		return AccessEvent{}, err
	}
	return AccessEvent{}, io.EOF
}

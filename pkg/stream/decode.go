package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrIncompleteStream is returned when a stream closes before its finish frame.
var ErrIncompleteStream = errors.New("stream closed without a finish frame")

// maxFrameSize bounds a single frame line.
const maxFrameSize = 4 << 20

// Decoder reads frames line by line. Frames with unknown tags are skipped.
type Decoder struct {
	sc       *bufio.Scanner
	finished bool
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Decoder{sc: sc}
}

// Next returns the next known frame. After the finish frame it returns
// io.EOF; if the input ends first it returns ErrIncompleteStream.
func (d *Decoder) Next() (Frame, error) {
	if d.finished {
		return Frame{}, io.EOF
	}
	for d.sc.Scan() {
		line := bytes.TrimRight(d.sc.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		tag, payload, ok := bytes.Cut(line, []byte(":"))
		if !ok || !known(Tag(tag)) {
			continue
		}
		if !json.Valid(payload) {
			return Frame{}, fmt.Errorf("invalid %s frame payload: %q", tag, payload)
		}
		f := Frame{Tag: Tag(tag), Payload: append(json.RawMessage(nil), payload...)}
		if f.Tag == TagFinish {
			d.finished = true
		}
		return f, nil
	}
	if err := d.sc.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, ErrIncompleteStream
}

func known(t Tag) bool {
	switch t {
	case TagText, TagToolCall, TagToolResult, TagMetadata, TagFinish, TagError, TagErrorAlt:
		return true
	}
	return false
}

// Text decodes the payload of a text frame.
func (f Frame) Text() (string, error) {
	var s string
	err := json.Unmarshal(f.Payload, &s)
	return s, err
}

// Err decodes the payload of an error frame.
func (f Frame) Err() error {
	var s string
	if err := json.Unmarshal(f.Payload, &s); err != nil {
		s = string(f.Payload)
	}
	return errors.New(s)
}

// Transcript is a decoded stream.
type Transcript struct {
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolCall
	Metadata    []json.RawMessage
	Finish      *Finish
	Err         error
}

// ReadAll decodes a whole stream. A stream ending without a finish frame
// yields ErrIncompleteStream alongside what was read; an error frame is
// reported in Transcript.Err.
func ReadAll(r io.Reader) (*Transcript, error) {
	d := NewDecoder(r)
	t := &Transcript{}
	for {
		f, err := d.Next()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return t, err
		}
		switch f.Tag {
		case TagText:
			s, err := f.Text()
			if err != nil {
				return t, err
			}
			t.Text += s
		case TagToolCall, TagToolResult:
			var c ToolCall
			if err := json.Unmarshal(f.Payload, &c); err != nil {
				return t, err
			}
			if f.Tag == TagToolCall {
				t.ToolCalls = append(t.ToolCalls, c)
			} else {
				t.ToolResults = append(t.ToolResults, c)
			}
		case TagMetadata:
			var items []json.RawMessage
			if err := json.Unmarshal(f.Payload, &items); err != nil {
				return t, err
			}
			t.Metadata = append(t.Metadata, items...)
		case TagFinish:
			var fin Finish
			if err := json.Unmarshal(f.Payload, &fin); err != nil {
				return t, err
			}
			t.Finish = &fin
		case TagError, TagErrorAlt:
			t.Err = f.Err()
		}
	}
}

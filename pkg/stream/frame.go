package stream

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// Tag identifies the kind of a frame.
type Tag string

const (
	TagText       Tag = "0"
	TagToolCall   Tag = "9"
	TagToolResult Tag = "a"
	TagMetadata   Tag = "8"
	TagFinish     Tag = "e"
	TagError      Tag = "3"
	// TagErrorAlt is an alternate error tag accepted when decoding.
	TagErrorAlt Tag = "d"
)

// Frame is one line of the data stream: "<tag>:<payload>\n".
type Frame struct {
	Tag     Tag
	Payload json.RawMessage
}

// String renders the frame with its trailing newline.
func (f Frame) String() string {
	return string(f.Tag) + ":" + string(f.Payload) + "\n"
}

// Terminal reports whether the frame ends a stream.
func (f Frame) Terminal() bool {
	return f.Tag == TagFinish || f.IsError()
}

// IsError reports whether the frame carries an error.
func (f Frame) IsError() bool {
	return f.Tag == TagError || f.Tag == TagErrorAlt
}

// ToolCall is the payload of tool call and tool result frames.
type ToolCall struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
	Result     *string        `json:"result,omitempty"`
}

// Finish is the payload of the finish frame.
type Finish struct {
	FinishReason string        `json:"finishReason"`
	IsContinued  bool          `json:"isContinued"`
	Usage        *domain.Usage `json:"usage,omitempty"`
}

func mustFrame(tag Tag, v any) Frame {
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(fmt.Sprintf("encode %s frame: %v", tag, err))
		tag = TagError
	}
	return Frame{Tag: tag, Payload: raw}
}

// TextFrame encodes a text increment.
func TextFrame(text string) Frame {
	return mustFrame(TagText, text)
}

// ErrorFrame encodes an error message.
func ErrorFrame(err error) Frame {
	return mustFrame(TagError, err.Error())
}

// FinishFrame encodes the finish frame.
func FinishFrame(f Finish) Frame {
	return mustFrame(TagFinish, f)
}

// MetadataFrame encodes side-channel metadata.
func MetadataFrame(items ...any) Frame {
	if items == nil {
		items = []any{}
	}
	return mustFrame(TagMetadata, items)
}

func toolCall(c *domain.ToolCall) ToolCall {
	args := c.Args
	if args == nil {
		args = map[string]any{}
	}
	return ToolCall{ToolCallID: c.ID, ToolName: c.Name, Args: args}
}

// Encode maps a stream event to its frame. Events with no wire
// representation, such as node completions, report ok=false.
func Encode(ev domain.StreamEvent) (f Frame, ok bool) {
	switch ev.Type {
	case domain.EventTextDelta:
		if ev.Text == "" {
			return Frame{}, false
		}
		return TextFrame(ev.Text), true
	case domain.EventToolCallStarted:
		if ev.ToolCall == nil {
			return Frame{}, false
		}
		return mustFrame(TagToolCall, toolCall(ev.ToolCall)), true
	case domain.EventToolCallFinished:
		if ev.ToolCall == nil || ev.Result == nil {
			return Frame{}, false
		}
		p := toolCall(ev.ToolCall)
		p.Result = &ev.Result.Content
		return mustFrame(TagToolResult, p), true
	case domain.EventMetadata:
		return MetadataFrame(ev.Metadata...), true
	case domain.EventFinish:
		return FinishFrame(Finish{FinishReason: ev.FinishReason, Usage: ev.Usage}), true
	case domain.EventError:
		if ev.Err == nil {
			return mustFrame(TagError, "unknown error"), true
		}
		return ErrorFrame(ev.Err), true
	}
	return Frame{}, false
}

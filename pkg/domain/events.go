package domain

import (
	"context"
	"time"
)

// StreamEventType defines the category of a StreamEvent.
type StreamEventType string

const (
	EventTextDelta        StreamEventType = "text_delta"
	EventToolCallStarted  StreamEventType = "tool_call_started"
	EventToolCallFinished StreamEventType = "tool_call_finished"
	EventNodeFinished     StreamEventType = "node_finished"
	EventMetadata         StreamEventType = "metadata"
	EventFinish           StreamEventType = "finish"
	EventError            StreamEventType = "error"
)

// Usage reports token consumption of model calls.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

// Add accumulates u2 into u.
func (u Usage) Add(u2 Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + u2.PromptTokens,
		CompletionTokens: u.CompletionTokens + u2.CompletionTokens,
	}
}

// IsZero reports whether no usage was recorded.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0
}

// StreamEvent is a transient notification produced while a run is in progress.
// Events are never persisted.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Node         string          `json:"node,omitempty"`
	Text         string          `json:"text,omitempty"`
	ToolCall     *ToolCall       `json:"tool_call,omitempty"`
	Result       *ToolResult     `json:"result,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
	Metadata     []any           `json:"metadata,omitempty"`
	Err          error           `json:"-"`
}

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
	EventCheckpoint EventType = "checkpoint"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ThreadID  string    `json:"thread_id"`
}

// NodeEvent represents entry into or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Step     int           `json:"step"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// ToolEvent represents a tool execution.
type ToolEvent struct {
	EventBase
	ToolName string         `json:"tool_name"`
	CallID   string         `json:"call_id"`
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output,omitempty"`
	IsError  bool           `json:"is_error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// CheckpointEvent is emitted after a checkpoint is durably saved.
type CheckpointEvent struct {
	EventBase
	Seq  int64    `json:"seq"`
	Next []string `json:"next"`
}

// LifecycleHooks defines callbacks for engine observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnCheckpoint func(context.Context, *CheckpointEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:  chain(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave:  chain(h.OnNodeLeave, other.OnNodeLeave),
		OnToolCall:   chain(h.OnToolCall, other.OnToolCall),
		OnToolReturn: chain(h.OnToolReturn, other.OnToolReturn),
		OnCheckpoint: chain(h.OnCheckpoint, other.OnCheckpoint),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

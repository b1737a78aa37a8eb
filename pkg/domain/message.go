package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation history.
// Assistant messages may carry ToolCalls; tool messages carry the ToolCallID
// of the call they answer.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewHumanMessage creates a human message with a fresh id.
func NewHumanMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleHuman,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAssistantMessage creates an assistant message with a fresh id.
func NewAssistantMessage(content string, calls ...ToolCall) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: calls,
		CreatedAt: time.Now().UTC(),
	}
}

// NewToolMessage converts a tool result into a history entry.
func NewToolMessage(result ToolResult) Message {
	return Message{
		ID:         uuid.NewString(),
		Role:       RoleTool,
		Content:    result.Content,
		ToolCallID: result.CallID,
		Name:       result.Name,
		IsError:    result.IsError,
		CreatedAt:  time.Now().UTC(),
	}
}

// HasToolCalls reports whether the message requests tool invocations.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// LastMessage returns the final message of the history, if any.
func LastMessage(history []Message) (Message, bool) {
	if len(history) == 0 {
		return Message{}, false
	}
	return history[len(history)-1], true
}

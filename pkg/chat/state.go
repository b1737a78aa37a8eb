package chat

import (
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/graph"
)

// State is the execution state of a conversation thread.
type State struct {
	Messages     []domain.Message `json:"messages,omitempty"`
	Usage        domain.Usage     `json:"usage"`
	FinishReason string           `json:"finish_reason,omitempty"`
}

// Schema declares how partial updates of State are merged: messages are
// appended, every other field is replaced. Usage holds the thread's running
// total, computed by the node that reports it.
func Schema() *graph.Schema[State] {
	return graph.NewSchema(
		graph.Append("messages", func(s *State) *[]domain.Message { return &s.Messages }),
		graph.Replace("usage", func(s *State) *domain.Usage { return &s.Usage }),
		graph.Replace("finish_reason", func(s *State) *string { return &s.FinishReason }),
	)
}

// Input wraps a user question into the partial update a run starts from.
func Input(question string) State {
	return State{Messages: []domain.Message{domain.NewHumanMessage(question)}}
}

// Answer returns the last assistant message that carries text.
func (s State) Answer() (domain.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == domain.RoleAssistant && !m.HasToolCalls() {
			return m, true
		}
	}
	return domain.Message{}, false
}

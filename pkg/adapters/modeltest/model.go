// Package modeltest provides a scripted ports.Model for tests and offline demos.
package modeltest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

// ErrScriptExhausted is returned when a model is called more times than scripted.
var ErrScriptExhausted = errors.New("modeltest: no scripted turn left")

// Turn is one scripted model answer.
type Turn struct {
	Text      string
	ToolCalls []domain.ToolCall
	Usage     domain.Usage
	Err       error
	// Delay is waited, honoring cancellation, before answering.
	Delay time.Duration
}

// Text scripts a plain answer.
func Text(s string) Turn {
	return Turn{Text: s}
}

// Call scripts a turn requesting one or more tool invocations.
func Call(calls ...domain.ToolCall) Turn {
	return Turn{ToolCalls: calls}
}

// ToolCall builds a call with the given id.
func ToolCall(id, name string, args map[string]any) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Args: args}
}

// Handler answers requests that are not scripted in order.
type Handler func(req ports.ModelRequest) Turn

// Model replays scripted turns in order, then falls back to its handler.
// It records every request it sees. Safe for concurrent use.
type Model struct {
	mu       sync.Mutex
	turns    []Turn
	handler  Handler
	requests []ports.ModelRequest
}

// New creates a model answering with turns in order.
func New(turns ...Turn) *Model {
	return &Model{turns: turns}
}

// WithHandler sets the fallback used once scripted turns run out.
func (m *Model) WithHandler(h Handler) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
	return m
}

// NewEcho creates a model that repeats the latest human message, useful
// for running the CLI without credentials.
func NewEcho() *Model {
	return New().WithHandler(func(req ports.ModelRequest) Turn {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == domain.RoleHuman {
				return Text("You said: " + req.Messages[i].Content)
			}
		}
		return Text("Hello!")
	})
}

// Requests returns a copy of the requests received so far.
func (m *Model) Requests() []ports.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ModelRequest(nil), m.requests...)
}

func (m *Model) next(req ports.ModelRequest) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req.Messages = append([]domain.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)

	if len(m.turns) > 0 {
		t := m.turns[0]
		m.turns = m.turns[1:]
		return t, nil
	}
	if m.handler != nil {
		return m.handler(req), nil
	}
	return Turn{}, ErrScriptExhausted
}

// Complete answers with the next turn. Text is delivered to onDelta word by word.
func (m *Model) Complete(ctx context.Context, req ports.ModelRequest, onDelta ports.DeltaFunc) (ports.ModelResponse, error) {
	if err := ctx.Err(); err != nil {
		return ports.ModelResponse{}, err
	}
	turn, err := m.next(req)
	if err != nil {
		return ports.ModelResponse{}, err
	}

	if turn.Delay > 0 {
		timer := time.NewTimer(turn.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ports.ModelResponse{}, ctx.Err()
		case <-timer.C:
		}
	}
	if turn.Err != nil {
		return ports.ModelResponse{}, turn.Err
	}

	if onDelta != nil && turn.Text != "" {
		for _, chunk := range strings.SplitAfter(turn.Text, " ") {
			if chunk != "" {
				onDelta(chunk)
			}
		}
	}

	calls := make([]domain.ToolCall, len(turn.ToolCalls))
	for i, c := range turn.ToolCalls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", len(m.Requests()), i)
		}
		calls[i] = c
	}

	finish := "stop"
	if len(calls) > 0 {
		finish = "tool_calls"
	}
	usage := turn.Usage
	if usage.IsZero() {
		usage = domain.Usage{PromptTokens: countTokens(req), CompletionTokens: int64(len(turn.Text) / 4)}
	}

	return ports.ModelResponse{
		Message:      domain.NewAssistantMessage(turn.Text, calls...),
		FinishReason: finish,
		Usage:        usage,
	}, nil
}

func countTokens(req ports.ModelRequest) int64 {
	n := len(req.System)
	for _, msg := range req.Messages {
		n += len(msg.Content)
	}
	return int64(n / 4)
}

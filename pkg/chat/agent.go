package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/graph"
	"github.com/aretw0/mindgraph/pkg/pool"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/registry"
)

// Node names and route labels of the tool-calling graph.
const (
	NodeModelCall     = "model-call"
	NodeToolExecution = "tool-execution"

	RouteContinue = "continue"
	RouteEnd      = "end"
)

// Agent is the tool-calling loop: the model answers or requests tools, the
// requested tools run, and their results go back to the model until it
// answers without tool calls.
type Agent struct {
	model   ports.Model
	tools   *registry.Registry
	limiter *pool.Limiter
	system  string
	budget  int
	counter TokenCounter
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	graph   *graph.Compiled[State]
}

// Option configures an Agent.
type Option func(*Agent)

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.system = prompt
	}
}

// WithTokenBudget sets the history budget of each model call.
func WithTokenBudget(budget int) Option {
	return func(a *Agent) {
		a.budget = budget
	}
}

// WithTokenCounter replaces ApproxTokens.
func WithTokenCounter(c TokenCounter) Option {
	return func(a *Agent) {
		a.counter = c
	}
}

// WithToolLimiter bounds the number of tool invocations running at once,
// across every thread served by the agent.
func WithToolLimiter(l *pool.Limiter) Option {
	return func(a *Agent) {
		a.limiter = l
	}
}

// WithLifecycleHooks registers OnToolCall and OnToolReturn callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Agent) {
		a.hooks = a.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// New builds the agent and compiles its graph. A nil registry means no tools.
func New(model ports.Model, tools *registry.Registry, opts ...Option) (*Agent, error) {
	if tools == nil {
		tools = registry.NewRegistry()
	}
	a := &Agent{
		model:   model,
		tools:   tools,
		system:  DefaultSystemPrompt,
		budget:  DefaultTokenBudget,
		counter: ApproxTokens,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	g, err := graph.NewBuilder(Schema()).
		AddNode(NodeModelCall, a.callModel).
		AddNode(NodeToolExecution, a.executeTools).
		AddEdge(graph.Start, NodeModelCall).
		AddConditionalEdges(NodeModelCall, shouldContinue, map[string]string{
			RouteContinue: NodeToolExecution,
			RouteEnd:      graph.End,
		}).
		AddEdge(NodeToolExecution, NodeModelCall).
		Compile()
	if err != nil {
		return nil, err
	}
	a.graph = g
	return a, nil
}

// Graph returns the compiled tool-calling graph.
func (a *Agent) Graph() *graph.Compiled[State] {
	return a.graph
}

// Tools returns the registry the agent exposes to the model.
func (a *Agent) Tools() *registry.Registry {
	return a.tools
}

func shouldContinue(s State) string {
	if last, ok := domain.LastMessage(s.Messages); ok && last.HasToolCalls() {
		return RouteContinue
	}
	return RouteEnd
}

func (a *Agent) callModel(ctx context.Context, s State) (State, error) {
	req := ports.ModelRequest{
		System:   a.system,
		Messages: Trim(s.Messages, a.budget, a.counter),
		Tools:    a.tools.Specs(),
	}
	a.logger.Debug("Calling model", "thread_id", graph.ThreadID(ctx), "messages", len(req.Messages), "history", len(s.Messages))

	resp, err := a.model.Complete(ctx, req, func(text string) {
		graph.Emit(ctx, domain.StreamEvent{Type: domain.EventTextDelta, Text: text})
	})
	if err != nil {
		return State{}, fmt.Errorf("model call failed: %w", err)
	}

	msg := resp.Message
	msg.Role = domain.RoleAssistant
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}

	finish := resp.FinishReason
	if finish == "" {
		finish = "stop"
		if msg.HasToolCalls() {
			finish = "tool_calls"
		}
	}
	return State{Messages: []domain.Message{msg}, Usage: s.Usage.Add(resp.Usage), FinishReason: finish}, nil
}

// executeTools runs every call of the last assistant message concurrently.
// Results are appended in call order. Failures become error results the
// model can read; only cancellation fails the step.
func (a *Agent) executeTools(ctx context.Context, s State) (State, error) {
	last, ok := domain.LastMessage(s.Messages)
	if !ok || !last.HasToolCalls() {
		return State{}, nil
	}
	rc := domain.RunContextFrom(ctx)
	results := make([]domain.Message, len(last.ToolCalls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range last.ToolCalls {
		g.Go(func() error {
			return a.limiter.Do(gctx, func(ctx context.Context) error {
				results[i] = domain.NewToolMessage(a.invoke(ctx, call, rc))
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return State{}, err
	}
	return State{Messages: results}, nil
}

func (a *Agent) invoke(ctx context.Context, call domain.ToolCall, rc domain.RunContext) domain.ToolResult {
	threadID := graph.ThreadID(ctx)
	started := time.Now()
	graph.Emit(ctx, domain.StreamEvent{Type: domain.EventToolCallStarted, ToolCall: &call})
	if a.hooks.OnToolCall != nil {
		a.hooks.OnToolCall(ctx, &domain.ToolEvent{
			EventBase: domain.EventBase{Timestamp: started.UTC(), Type: domain.EventToolCall, ThreadID: threadID},
			ToolName:  call.Name,
			CallID:    call.ID,
			Input:     call.Args,
		})
	}

	result := domain.ToolResult{CallID: call.ID, Name: call.Name}
	out, err := a.tools.Execute(ctx, call, rc)
	if err != nil {
		a.logger.Warn("Tool failed", "thread_id", threadID, "tool", call.Name, "call_id", call.ID, "err", err)
		result.Content = fmt.Sprintf("Error: %v", err)
		result.IsError = true
	} else {
		result.Content = out
	}

	if a.hooks.OnToolReturn != nil {
		a.hooks.OnToolReturn(ctx, &domain.ToolEvent{
			EventBase: domain.EventBase{Timestamp: time.Now().UTC(), Type: domain.EventToolReturn, ThreadID: threadID},
			ToolName:  call.Name,
			CallID:    call.ID,
			Input:     call.Args,
			Output:    result.Content,
			IsError:   result.IsError,
			Duration:  time.Since(started),
		})
	}
	graph.Emit(ctx, domain.StreamEvent{Type: domain.EventToolCallFinished, ToolCall: &call, Result: &result})
	return result
}

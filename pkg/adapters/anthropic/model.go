// Package anthropic adapts the Anthropic messages API to ports.Model.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
)

// Model calls the messages endpoint with streaming enabled.
//
// Structured output is requested by forcing a single tool whose input schema
// is the output schema; the tool input becomes the message content.
type Model struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

type Option func(*Model)

// WithModel sets the model name.
func WithModel(name string) Option {
	return func(m *Model) {
		if name != "" {
			m.model = name
		}
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxTokens = int64(n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

// New creates a model. An empty baseURL uses the public endpoint.
func New(apiKey, baseURL string, opts ...Option) *Model {
	reqOpts := []aoption.RequestOption{aoption.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(baseURL) != "" {
		reqOpts = append(reqOpts, aoption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	m := &Model{
		client:    anthropic.NewClient(reqOpts...),
		model:     DefaultModel,
		maxTokens: defaultMaxTokens,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Complete streams one message, forwarding text deltas to onDelta.
func (m *Model) Complete(ctx context.Context, req ports.ModelRequest, onDelta ports.DeltaFunc) (ports.ModelResponse, error) {
	params, err := m.params(req)
	if err != nil {
		return ports.ModelResponse{}, err
	}

	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return ports.ModelResponse{}, fmt.Errorf("anthropic accumulate: %w", err)
		}
		if req.Output != nil || onDelta == nil {
			continue
		}
		if variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				onDelta(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return ports.ModelResponse{}, fmt.Errorf("anthropic stream: %w", err)
	}

	var text strings.Builder
	var calls []domain.ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			if req.Output != nil && variant.Name == req.Output.Name {
				text.Write(variant.Input)
				continue
			}
			args := map[string]any{}
			if len(variant.Input) > 0 {
				if err := json.Unmarshal(variant.Input, &args); err != nil {
					m.logger.Warn("tool_use input is not an object", "tool", variant.Name, "error", err)
				}
			}
			calls = append(calls, domain.ToolCall{ID: variant.ID, Name: variant.Name, Args: args})
		}
	}

	finish := stopReason(msg.StopReason)
	if len(calls) > 0 {
		finish = "tool_calls"
	} else if req.Output != nil && finish == "tool_calls" {
		finish = "stop"
	}
	return ports.ModelResponse{
		Message:      domain.NewAssistantMessage(text.String(), calls...),
		FinishReason: finish,
		Usage: domain.Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

func (m *Model) params(req ports.ModelRequest) (anthropic.MessageNewParams, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages:  messages,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	for _, spec := range req.Tools {
		tool, err := toolParam(spec.Name, spec.Description, spec.Parameters)
		if err != nil {
			return params, err
		}
		params.Tools = append(params.Tools, tool)
	}

	if req.Output != nil {
		tool, err := toolParam(req.Output.Name, req.Output.Description, req.Output.Schema)
		if err != nil {
			return params, err
		}
		params.Tools = append(params.Tools, tool)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Output.Name},
		}
	}
	return params, nil
}

func toolParam(name, description string, schema json.RawMessage) (anthropic.ToolUnionParam, error) {
	var s struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &s); err != nil {
			return anthropic.ToolUnionParam{}, fmt.Errorf("tool %q: invalid schema: %w", name, err)
		}
	}
	if s.Properties == nil {
		s.Properties = map[string]any{}
	}
	param := anthropic.ToolParam{
		Name:        name,
		Description: anthropic.String(description),
		InputSchema: anthropic.ToolInputSchemaParam{Properties: s.Properties, Required: s.Required},
	}
	return anthropic.ToolUnionParam{OfTool: &param}, nil
}

// buildMessages converts the history, folding consecutive messages of the
// same API role into one so tool results for parallel calls travel together.
func buildMessages(history []domain.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	var blocks []anthropic.ContentBlockParamUnion
	assistant := false

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if assistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, msg := range history {
		isAssistant := msg.Role == domain.RoleAssistant
		if isAssistant != assistant {
			flush()
			assistant = isAssistant
		}
		switch msg.Role {
		case domain.RoleHuman:
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		case domain.RoleTool:
			blocks = append(blocks, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		case domain.RoleAssistant:
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := call.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}
		default:
			return nil, fmt.Errorf("unsupported role %q", msg.Role)
		}
	}
	flush()
	return out, nil
}

func stopReason(reason anthropic.StopReason) string {
	switch strings.ToLower(string(reason)) {
	case "tool_use":
		return "tool_calls"
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "refusal":
		return "content_filter"
	default:
		return "unknown"
	}
}

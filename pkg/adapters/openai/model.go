// Package openai adapts the OpenAI chat completions API to ports.Model.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

const DefaultModel = "gpt-4o-mini"

// Model calls the chat completions endpoint with streaming enabled.
type Model struct {
	client    openai.Client
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
		m.maxTokens = int64(n)
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
	reqOpts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(baseURL) != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	m := &Model{
		client: openai.NewClient(reqOpts...),
		model:  DefaultModel,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Complete streams one completion, forwarding content deltas to onDelta.
func (m *Model) Complete(ctx context.Context, req ports.ModelRequest, onDelta ports.DeltaFunc) (ports.ModelResponse, error) {
	params, err := m.params(req)
	if err != nil {
		return ports.ModelResponse{}, err
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && onDelta != nil && req.Output == nil {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return ports.ModelResponse{}, fmt.Errorf("openai stream: %w", err)
	}
	if len(acc.Choices) == 0 {
		return ports.ModelResponse{}, errors.New("openai: empty completion")
	}

	choice := acc.Choices[0]
	calls := make([]domain.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				m.logger.Warn("tool call arguments are not JSON", "tool", tc.Function.Name, "error", err)
				args = map[string]any{"_raw": raw}
			}
		}
		calls = append(calls, domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}

	finish := choice.FinishReason
	if len(calls) > 0 {
		finish = "tool_calls"
	}
	return ports.ModelResponse{
		Message:      domain.NewAssistantMessage(choice.Message.Content, calls...),
		FinishReason: finish,
		Usage: domain.Usage{
			PromptTokens:     acc.Usage.PromptTokens,
			CompletionTokens: acc.Usage.CompletionTokens,
		},
	}, nil
}

func (m *Model) params(req ports.ModelRequest) (openai.ChatCompletionNewParams, error) {
	messages, err := buildMessages(req.System, req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.model),
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if m.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.maxTokens)
	}

	for _, spec := range req.Tools {
		schema, err := decodeSchema(spec.Parameters)
		if err != nil {
			return params, fmt.Errorf("tool %q: %w", spec.Name, err)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}

	if req.Output != nil {
		schema, err := decodeSchema(req.Output.Schema)
		if err != nil {
			return params, fmt.Errorf("output schema %q: %w", req.Output.Name, err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Output.Name,
					Description: openai.String(req.Output.Description),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}
	return params, nil
}

func decodeSchema(raw json.RawMessage) (map[string]any, error) {
	schema := map[string]any{}
	if len(raw) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func buildMessages(system string, history []domain.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, msg := range history {
		switch msg.Role {
		case domain.RoleHuman:
			out = append(out, openai.UserMessage(msg.Content))
		case domain.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case domain.RoleAssistant:
			asst := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				asst.Content.OfString = openai.String(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return nil, fmt.Errorf("marshal arguments of %q: %w", call.Name, err)
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		default:
			return nil, fmt.Errorf("unsupported role %q", msg.Role)
		}
	}
	return out, nil
}

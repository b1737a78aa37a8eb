package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/mindgraph/pkg/adapters/anthropic"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	name string
	data string
}

func textStream(parts ...string) []sseEvent {
	events := []sseEvent{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
	}
	for _, p := range parts {
		events = append(events, sseEvent{"content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, p)})
	}
	return append(events,
		sseEvent{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		sseEvent{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}`},
		sseEvent{"message_stop", `{"type":"message_stop"}`},
	)
}

func server(t *testing.T, events []sseEvent, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, captured)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestModel_StreamsText(t *testing.T) {
	var req map[string]any
	srv := server(t, textStream("Hel", "lo"), &req)

	m := anthropic.New("test-key", srv.URL, anthropic.WithModel("claude-test"), anthropic.WithMaxTokens(256))
	var deltas []string
	resp, err := m.Complete(context.Background(), ports.ModelRequest{
		System:   "be brief",
		Messages: []domain.Message{domain.NewHumanMessage("hi")},
	}, func(s string) { deltas = append(deltas, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, int64(10), resp.Usage.PromptTokens)
	assert.Equal(t, int64(5), resp.Usage.CompletionTokens)

	assert.Equal(t, "claude-test", req["model"])
	assert.EqualValues(t, 256, req["max_tokens"])
	system := req["system"].([]any)
	assert.Equal(t, "be brief", system[0].(map[string]any)["text"])
}

func TestModel_FoldsToolResults(t *testing.T) {
	var req map[string]any
	srv := server(t, textStream("done"), &req)

	history := []domain.Message{
		domain.NewHumanMessage("compare a and b"),
		domain.NewAssistantMessage("",
			domain.ToolCall{ID: "tu_1", Name: "lookup", Args: map[string]any{"q": "a"}},
			domain.ToolCall{ID: "tu_2", Name: "lookup", Args: map[string]any{"q": "b"}},
		),
		domain.NewToolMessage(domain.ToolResult{CallID: "tu_1", Name: "lookup", Content: "A"}),
		domain.NewToolMessage(domain.ToolResult{CallID: "tu_2", Name: "lookup", Content: "boom", IsError: true}),
	}
	_, err := anthropic.New("k", srv.URL).Complete(context.Background(), ports.ModelRequest{
		Messages: history,
		Tools:    []domain.ToolSpec{{Name: "lookup", Description: "Look up", Parameters: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)}},
	}, nil)
	require.NoError(t, err)

	msgs := req["messages"].([]any)
	require.Len(t, msgs, 3, "parallel tool results share one user message")
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
	assert.Len(t, msgs[1].(map[string]any)["content"], 2)

	results := msgs[2].(map[string]any)
	assert.Equal(t, "user", results["role"])
	blocks := results["content"].([]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "tool_result", blocks[1].(map[string]any)["type"])
	assert.Equal(t, "tu_2", blocks[1].(map[string]any)["tool_use_id"])
	assert.Equal(t, true, blocks[1].(map[string]any)["is_error"])

	tools := req["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].(map[string]any)["name"])
}

func TestModel_StructuredOutputForcesTool(t *testing.T) {
	var req map[string]any
	srv := server(t, textStream(`{}`), &req)

	_, err := anthropic.New("k", srv.URL).Complete(context.Background(), ports.ModelRequest{
		Messages: []domain.Message{domain.NewHumanMessage("x")},
		Output:   &ports.OutputSchema{Name: "themes", Schema: json.RawMessage(`{"type":"object","properties":{"nodes":{"type":"array"}},"required":["nodes"]}`)},
	}, nil)
	require.NoError(t, err)

	choice := req["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, "themes", choice["name"])
}

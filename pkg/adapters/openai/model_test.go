package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/mindgraph/pkg/adapters/openai"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, chunks []string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, captured)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chunk(delta string, finish string) string {
	fr := "null"
	if finish != "" {
		fr = `"` + finish + `"`
	}
	return `{"id":"cmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":` + delta + `,"finish_reason":` + fr + `}]}`
}

func TestModel_StreamsText(t *testing.T) {
	var req map[string]any
	srv := sseServer(t, []string{
		chunk(`{"role":"assistant","content":"Hel"}`, ""),
		chunk(`{"content":"lo"}`, ""),
		chunk(`{}`, "stop"),
		`{"id":"cmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":2,"total_tokens":14}}`,
	}, &req)

	m := openai.New("test-key", srv.URL, openai.WithModel("gpt-test"))
	var deltas []string
	resp, err := m.Complete(context.Background(), ports.ModelRequest{
		System:   "be brief",
		Messages: []domain.Message{domain.NewHumanMessage("hi")},
	}, func(s string) { deltas = append(deltas, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", resp.Message.Content)
	assert.Equal(t, domain.RoleAssistant, resp.Message.Role)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, domain.Usage{PromptTokens: 12, CompletionTokens: 2}, resp.Usage)

	assert.Equal(t, "gpt-test", req["model"])
	assert.Equal(t, true, req["stream"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestModel_ToolCalls(t *testing.T) {
	var req map[string]any
	srv := sseServer(t, []string{
		chunk(`{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":"}}]}`, ""),
		chunk(`{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]}`, ""),
		chunk(`{}`, "tool_calls"),
	}, &req)

	m := openai.New("test-key", srv.URL)
	history := []domain.Message{
		domain.NewHumanMessage("find x"),
		domain.NewAssistantMessage("", domain.ToolCall{ID: "call_0", Name: "lookup", Args: map[string]any{"q": "y"}}),
		domain.NewToolMessage(domain.ToolResult{CallID: "call_0", Name: "lookup", Content: "nothing"}),
	}
	resp, err := m.Complete(context.Background(), ports.ModelRequest{
		Messages: history,
		Tools:    []domain.ToolSpec{{Name: "lookup", Description: "Look up", Parameters: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, domain.ToolCall{ID: "call_1", Name: "lookup", Args: map[string]any{"q": "x"}}, resp.Message.ToolCalls[0])

	msgs := req["messages"].([]any)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	assert.Len(t, assistant["tool_calls"], 1)
	tool := msgs[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_0", tool["tool_call_id"])

	tools := req["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].(map[string]any)["function"].(map[string]any)["name"])
}

func TestModel_StructuredOutput(t *testing.T) {
	var req map[string]any
	srv := sseServer(t, []string{chunk(`{"role":"assistant","content":"{\"ok\":true}"}`, "stop")}, &req)

	var deltas int
	resp, err := openai.New("k", srv.URL).Complete(context.Background(), ports.ModelRequest{
		Messages: []domain.Message{domain.NewHumanMessage("x")},
		Output:   &ports.OutputSchema{Name: "verdict", Schema: json.RawMessage(`{"type":"object","properties":{"ok":{"type":"boolean"}},"required":["ok"],"additionalProperties":false}`)},
	}, func(string) { deltas++ })
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Message.Content)
	assert.Zero(t, deltas, "structured output is not streamed as text")

	format := req["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "verdict", format["json_schema"].(map[string]any)["name"])
}

package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/mindgraph"
	"github.com/aretw0/mindgraph/pkg/adapters/modeltest"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	model := modeltest.New().WithHandler(func(req ports.ModelRequest) modeltest.Turn {
		if req.Output != nil {
			if req.Output.Name == "connector_result" {
				return modeltest.Text(`{"edges":[]}`)
			}
			return modeltest.Text(`{"nodes":[{"id":"1","data":{"label":"Rest","summary":"s","intensity":0,"thought_ids":[]}}],"edges":[],"message":"m"}`)
		}
		last, _ := domain.LastMessage(req.Messages)
		return modeltest.Text("You said: " + last.Content)
	})
	eng, err := mindgraph.New(mindgraph.WithModel(model))
	require.NoError(t, err)
	return NewServer(eng, nil)
}

func TestChatAndHistory(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	res, err := s.handleChat(ctx, mcp.CallToolRequest{}, ChatArgs{Message: "hello", ThreadID: "t1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", res.ThreadID)
	assert.Equal(t, "You said: hello", res.Answer)

	hist, err := s.handleHistory(ctx, mcp.CallToolRequest{}, HistoryArgs{ThreadID: "t1", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, domain.RoleHuman, hist.Messages[0].Role)

	_, err = s.handleHistory(ctx, mcp.CallToolRequest{}, HistoryArgs{ThreadID: "t1", UserID: "u2"})
	assert.ErrorIs(t, err, domain.ErrThreadNotFound, "threads are scoped to their user")

	_, err = s.handleHistory(ctx, mcp.CallToolRequest{}, HistoryArgs{ThreadID: "missing"})
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)

	_, err = s.handleChat(ctx, mcp.CallToolRequest{}, ChatArgs{})
	assert.Error(t, err)
}

func TestChat_CreatesThread(t *testing.T) {
	s := newServer(t)
	res, err := s.handleChat(context.Background(), mcp.CallToolRequest{}, ChatArgs{Message: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ThreadID)
}

func TestReflect(t *testing.T) {
	s := newServer(t)
	res, err := s.handleReflect(context.Background(), mcp.CallToolRequest{}, ReflectArgs{Message: "tired", ThreadID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ThreadID)
	assert.Len(t, res.Nodes, 3)
	assert.Empty(t, res.Edges)
}

func TestThreadsResource(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	_, err := s.handleChat(ctx, mcp.CallToolRequest{}, ChatArgs{Message: "hi", ThreadID: "t1"})
	require.NoError(t, err)

	contents, err := s.readThreads(ctx, mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, ThreadsURI, text.URI)
	assert.JSONEq(t, `["t1"]`, text.Text)
}

func TestToolsList(t *testing.T) {
	s := newServer(t)
	msg := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	for _, name := range []string{`"chat"`, `"history"`, `"reflect"`} {
		assert.Contains(t, string(raw), name)
	}
}

package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(_ context.Context, _ testState) (testState, error) { return testState{}, nil }

func TestCompile_Valid(t *testing.T) {
	g, err := graph.NewBuilder(schema()).
		AddNode("a", noop).
		AddNode("b", noop).
		AddEdge(graph.Start, "a").
		AddEdge("a", "b").
		AddEdge("b", graph.End).
		Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
	assert.Equal(t, []string{"messages", "route", "count"}, g.Schema().Fields())
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		build  func(b *graph.Builder[testState])
		reason string
	}{
		{
			name: "unknown edge target",
			build: func(b *graph.Builder[testState]) {
				b.AddNode("a", noop).AddEdge(graph.Start, "a").AddEdge("a", "ghost")
			},
			reason: `edge target "ghost" is not a registered node`,
		},
		{
			name: "unknown edge source",
			build: func(b *graph.Builder[testState]) {
				b.AddNode("a", noop).AddEdge(graph.Start, "a").AddEdge("a", graph.End).AddEdge("ghost", "a")
			},
			reason: "edge source is not a registered node",
		},
		{
			name: "unknown route target",
			build: func(b *graph.Builder[testState]) {
				b.AddNode("a", noop).AddEdge(graph.Start, "a").
					AddConditionalEdges("a", func(testState) string { return "x" }, map[string]string{"x": "ghost"})
			},
			reason: `route "x" targets unregistered node "ghost"`,
		},
		{
			name: "no path to end",
			build: func(b *graph.Builder[testState]) {
				b.AddNode("a", noop).AddNode("b", noop).
					AddEdge(graph.Start, "a").AddEdge("a", "b").AddEdge("b", "a")
			},
			reason: "no path from start to end",
		},
		{
			name: "dangling node",
			build: func(b *graph.Builder[testState]) {
				b.AddNode("a", noop).AddNode("b", noop).AddEdge(graph.Start, "a").AddEdge("a", graph.End)
			},
			reason: "node has no outgoing edge",
		},
		{
			name: "duplicate node",
			build: func(b *graph.Builder[testState]) {
				b.AddNode("a", noop).AddNode("a", noop).AddEdge(graph.Start, "a").AddEdge("a", graph.End)
			},
			reason: "node registered twice",
		},
		{
			name: "reserved name",
			build: func(b *graph.Builder[testState]) {
				b.AddNode(graph.End, noop).AddEdge(graph.Start, graph.End)
			},
			reason: "node name is reserved",
		},
		{
			name:   "empty graph",
			build:  func(b *graph.Builder[testState]) {},
			reason: "start has no outgoing edge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := graph.NewBuilder(schema())
			tt.build(b)
			_, err := b.Compile()
			require.Error(t, err)

			var defErr *domain.GraphDefinitionError
			require.True(t, errors.As(err, &defErr), "expected GraphDefinitionError, got %T", err)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestCompiled_Mermaid(t *testing.T) {
	g, err := graph.NewBuilder(schema()).
		AddNode("model-call", noop).
		AddNode("tool-execution", noop).
		AddEdge(graph.Start, "model-call").
		AddConditionalEdges("model-call", func(testState) string { return "end" }, map[string]string{
			"continue": "tool-execution",
			"end":      graph.End,
		}).
		AddEdge("tool-execution", "model-call").
		Compile()
	require.NoError(t, err)

	out := g.Mermaid()
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "START --> model_call")
	assert.Contains(t, out, `model_call -. "continue" .-> tool_execution`)
	assert.Contains(t, out, `model_call -. "end" .-> END`)
	assert.Contains(t, out, "tool_execution --> model_call")
}

package modeltest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/mindgraph/pkg/adapters/modeltest"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_ReplaysTurns(t *testing.T) {
	m := modeltest.New(
		modeltest.Call(modeltest.ToolCall("c1", "lookup", map[string]any{"q": "x"})),
		modeltest.Text("hello there world"),
	)
	ctx := context.Background()
	req := ports.ModelRequest{Messages: []domain.Message{domain.NewHumanMessage("hi")}}

	resp, err := m.Complete(ctx, req, nil)
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "c1", resp.Message.ToolCalls[0].ID)

	var deltas []string
	resp, err = m.Complete(ctx, req, func(s string) { deltas = append(deltas, s) })
	require.NoError(t, err)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, []string{"hello ", "there ", "world"}, deltas)

	_, err = m.Complete(ctx, req, nil)
	assert.ErrorIs(t, err, modeltest.ErrScriptExhausted)
	assert.Len(t, m.Requests(), 3)
}

func TestModel_ErrorsAndDelay(t *testing.T) {
	boom := errors.New("rate limited")
	m := modeltest.New(modeltest.Turn{Err: boom}, modeltest.Turn{Text: "late", Delay: time.Second})

	_, err := m.Complete(context.Background(), ports.ModelRequest{}, nil)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Complete(ctx, ports.ModelRequest{}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEcho(t *testing.T) {
	resp, err := modeltest.NewEcho().Complete(context.Background(), ports.ModelRequest{
		Messages: []domain.Message{domain.NewHumanMessage("ping")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "You said: ping", resp.Message.Content)
}

package stream_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/graph"
	"github.com/aretw0/mindgraph/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(frames []stream.Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.String())
	}
	return out
}

func TestEncode(t *testing.T) {
	call := &domain.ToolCall{ID: "c1", Name: "lookup", Args: map[string]any{"q": "x"}}
	tests := []struct {
		name string
		ev   domain.StreamEvent
		want string
	}{
		{"text", domain.StreamEvent{Type: domain.EventTextDelta, Text: "Hel\"lo"}, `0:"Hel\"lo"` + "\n"},
		{"tool call", domain.StreamEvent{Type: domain.EventToolCallStarted, ToolCall: call}, `9:{"toolCallId":"c1","toolName":"lookup","args":{"q":"x"}}` + "\n"},
		{"tool result", domain.StreamEvent{Type: domain.EventToolCallFinished, ToolCall: call, Result: &domain.ToolResult{Content: "found"}}, `a:{"toolCallId":"c1","toolName":"lookup","args":{"q":"x"},"result":"found"}` + "\n"},
		{"metadata", domain.StreamEvent{Type: domain.EventMetadata, Metadata: []any{map[string]string{"threadId": "t1"}}}, `8:[{"threadId":"t1"}]` + "\n"},
		{"finish", domain.StreamEvent{Type: domain.EventFinish, FinishReason: "stop", Usage: &domain.Usage{PromptTokens: 3, CompletionTokens: 1}}, `e:{"finishReason":"stop","isContinued":false,"usage":{"promptTokens":3,"completionTokens":1}}` + "\n"},
		{"error", domain.StreamEvent{Type: domain.EventError, Err: errors.New("boom")}, `3:"boom"` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := stream.Encode(tt.ev)
			require.True(t, ok)
			assert.Equal(t, tt.want, f.String())
		})
	}

	_, ok := stream.Encode(domain.StreamEvent{Type: domain.EventNodeFinished, Node: "a"})
	assert.False(t, ok, "node completions are not on the wire")
}

func TestRun_OrdersTextBeforeFinish(t *testing.T) {
	frames := stream.Run(context.Background(), func(ctx context.Context) (stream.Result, error) {
		graph.Emit(ctx, domain.StreamEvent{Type: domain.EventTextDelta, Text: "Hel"})
		graph.Emit(ctx, domain.StreamEvent{Type: domain.EventTextDelta, Text: "lo"})
		return stream.Result{FinishReason: "stop"}, nil
	})

	got := lines(stream.Collect(context.Background(), frames))
	assert.Equal(t, []string{
		`0:"Hel"` + "\n",
		`0:"lo"` + "\n",
		`e:{"finishReason":"stop","isContinued":false}` + "\n",
	}, got)
}

func TestRun_ErrorEndsWithErrorFrame(t *testing.T) {
	frames := stream.Run(context.Background(), func(ctx context.Context) (stream.Result, error) {
		graph.Emit(ctx, domain.StreamEvent{Type: domain.EventTextDelta, Text: "partial"})
		return stream.Result{}, errors.New("model failed")
	})
	got := stream.Collect(context.Background(), frames)
	require.Len(t, got, 2)
	assert.True(t, got[1].IsError())
	assert.EqualError(t, got[1].Err(), "model failed")
}

func TestRun_PanicEndsWithErrorFrame(t *testing.T) {
	frames := stream.Run(context.Background(), func(ctx context.Context) (stream.Result, error) {
		panic("kaboom")
	})
	got := stream.Collect(context.Background(), frames)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Err().Error(), "kaboom")
}

func TestRun_DropsEventsAfterTerminal(t *testing.T) {
	var late func()
	frames := stream.Run(context.Background(), func(ctx context.Context) (stream.Result, error) {
		late = func() { graph.Emit(ctx, domain.StreamEvent{Type: domain.EventTextDelta, Text: "late"}) }
		return stream.Result{}, nil
	})
	got := stream.Collect(context.Background(), frames)
	late()
	require.Len(t, got, 1)
	assert.Equal(t, stream.TagFinish, got[0].Tag)
}

func TestRun_SubscriberGoneDoesNotStopRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error

	frames := stream.Run(ctx, func(runCtx context.Context) (stream.Result, error) {
		defer wg.Done()
		<-release
		for i := 0; i < 100; i++ {
			graph.Emit(runCtx, domain.StreamEvent{Type: domain.EventTextDelta, Text: "x"})
		}
		runErr = runCtx.Err()
		return stream.Result{}, nil
	})

	cancel()
	close(release)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run blocked on a gone subscriber")
	}
	assert.NoError(t, runErr, "the run context is detached from the subscriber")

	for range frames {
	}
}

func TestDecoder(t *testing.T) {
	input := strings.Join([]string{
		`8:[{"threadId":"t1"}]`,
		`x:"future frame"`,
		`0:"Hel"`,
		``,
		`9:{"toolCallId":"c1","toolName":"lookup","args":{}}`,
		`a:{"toolCallId":"c1","toolName":"lookup","args":{},"result":"r"}`,
		`0:"lo"`,
		`e:{"finishReason":"stop","isContinued":false}`,
		`0:"ignored after finish"`,
	}, "\n")

	tr, err := stream.ReadAll(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "Hello", tr.Text)
	require.Len(t, tr.ToolCalls, 1)
	require.Len(t, tr.ToolResults, 1)
	assert.Equal(t, "r", *tr.ToolResults[0].Result)
	require.Len(t, tr.Metadata, 1)
	require.NotNil(t, tr.Finish)
	assert.Equal(t, "stop", tr.Finish.FinishReason)
}

func TestDecoder_Incomplete(t *testing.T) {
	d := stream.NewDecoder(strings.NewReader(`0:"Hel"` + "\n" + `d:"upstream failed"` + "\n"))
	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, stream.TagText, f.Tag)

	f, err = d.Next()
	require.NoError(t, err)
	assert.True(t, f.IsError())
	assert.EqualError(t, f.Err(), "upstream failed")

	_, err = d.Next()
	assert.ErrorIs(t, err, stream.ErrIncompleteStream)
}

func TestDecoder_EOFAfterFinish(t *testing.T) {
	d := stream.NewDecoder(strings.NewReader(`e:{"finishReason":"stop","isContinued":false}`))
	_, err := d.Next()
	require.NoError(t, err)
	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteTo(t *testing.T) {
	frames := stream.Run(context.Background(), func(ctx context.Context) (stream.Result, error) {
		graph.Emit(ctx, domain.StreamEvent{Type: domain.EventTextDelta, Text: "hi"})
		return stream.Result{FinishReason: "stop"}, nil
	})
	var buf bytes.Buffer
	require.NoError(t, stream.WriteTo(&buf, frames))
	assert.Equal(t, `0:"hi"`+"\n"+`e:{"finishReason":"stop","isContinued":false}`+"\n", buf.String())

	frames = stream.Run(context.Background(), func(context.Context) (stream.Result, error) {
		return stream.Result{}, nil
	})
	err := stream.WriteTo(failingWriter{}, frames)
	var transportErr *domain.StreamTransportError
	assert.ErrorAs(t, err, &transportErr)
}

package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/observability"
)

func value(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matches := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					matches = true
				}
			}
			if !matches {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeID: "model-call"})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeID: "model-call"})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{NodeID: "model-call", Duration: time.Millisecond})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{NodeID: "model-call", Err: errors.New("x")})
	hooks.OnToolCall(ctx, &domain.ToolEvent{ToolName: "lookup"})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{ToolName: "lookup", IsError: true, Duration: time.Millisecond})
	hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{Seq: 1})

	assert.Equal(t, 2.0, value(t, reg, "mindgraph_node_visits_total", "model-call"))
	assert.Equal(t, 1.0, value(t, reg, "mindgraph_node_errors_total", "model-call"))
	assert.Equal(t, 2.0, value(t, reg, "mindgraph_node_duration_seconds", "model-call"))
	assert.Equal(t, 1.0, value(t, reg, "mindgraph_tool_calls_total", "lookup"))
	assert.Equal(t, 1.0, value(t, reg, "mindgraph_tool_errors_total", "lookup"))
	assert.Equal(t, 1.0, value(t, reg, "mindgraph_tool_duration_seconds", "lookup"))
	assert.Equal(t, 1.0, value(t, reg, "mindgraph_checkpoints_total", ""))
}

func TestMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_Handler(t *testing.T) {
	m, err := observability.NewMetrics(nil)
	require.NoError(t, err)
	m.Hooks().OnCheckpoint(context.Background(), &domain.CheckpointEvent{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "mindgraph_checkpoints_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	hooks := observability.LogHooks(logger)
	ctx := context.Background()

	hooks.OnNodeLeave(ctx, &domain.NodeEvent{NodeID: "ok"})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{ToolName: "fine"})
	assert.Empty(t, buf.String(), "successful events log at debug")

	hooks.OnNodeLeave(ctx, &domain.NodeEvent{NodeID: "bad", Err: errors.New("boom")})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{ToolName: "broken", IsError: true})
	assert.Contains(t, buf.String(), "node_id=bad")
	assert.Contains(t, buf.String(), "error=boom")
	assert.Contains(t, buf.String(), "tool_name=broken")

	assert.Nil(t, observability.LogHooks(nil).OnNodeEnter)
}

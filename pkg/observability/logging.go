package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// LogHooks returns lifecycle hooks that write each event to logger at
// debug level. Failed nodes and tool errors are logged at warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	if logger == nil {
		return domain.LifecycleHooks{}
	}
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "thread_id", e.ThreadID, "node_id", e.NodeID, "step", e.Step)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "node_leave", "thread_id", e.ThreadID, "node_id", e.NodeID, "step", e.Step, "duration", e.Duration, "error", e.Err)
				return
			}
			logger.DebugContext(ctx, "node_leave", "thread_id", e.ThreadID, "node_id", e.NodeID, "step", e.Step, "duration", e.Duration)
		},
		OnToolCall: func(ctx context.Context, e *domain.ToolEvent) {
			logger.DebugContext(ctx, "tool_call", "thread_id", e.ThreadID, "tool_name", e.ToolName, "call_id", e.CallID)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			level := slog.LevelDebug
			if e.IsError {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "tool_return", "thread_id", e.ThreadID, "tool_name", e.ToolName, "call_id", e.CallID, "is_error", e.IsError, "duration", e.Duration)
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			logger.DebugContext(ctx, "checkpoint", "thread_id", e.ThreadID, "seq", e.Seq, "next", e.Next)
		},
	}
}

package domain

import (
	"errors"
	"fmt"
)

// ErrThreadNotFound is returned when a thread has no checkpoint in the store.
var ErrThreadNotFound = errors.New("thread not found")

// ErrInvalidThreadID is returned for an empty thread id or one that uses a
// reserved prefix.
var ErrInvalidThreadID = errors.New("invalid thread id")

// ErrCheckpointExists is returned when a checkpoint with the same (thread, seq) was already saved.
var ErrCheckpointExists = errors.New("checkpoint already exists")

// ErrThreadBusy is returned when another execution holds the thread lease and the
// caller asked not to wait.
var ErrThreadBusy = errors.New("thread is busy")

// ErrUnknownRoute is returned when a router yields a label with no mapped target.
var ErrUnknownRoute = errors.New("unknown route label")

// ErrToolNotFound is returned when the model requests a tool that is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrStepLimit is returned when a run exceeds its configured step limit.
var ErrStepLimit = errors.New("step limit exceeded")

// GraphDefinitionError reports an invalid graph, detected at compile time or
// when a router yields an unmapped label.
type GraphDefinitionError struct {
	Node   string
	Reason string
	Err    error
}

func (e *GraphDefinitionError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("invalid graph: %s", e.Reason)
	}
	return fmt.Sprintf("invalid graph at %q: %s", e.Node, e.Reason)
}

func (e *GraphDefinitionError) Unwrap() error { return e.Err }

// NodeExecutionError reports that a node failed during a step.
// No state was merged and no checkpoint was written for that step.
type NodeExecutionError struct {
	ThreadID string
	Node     string
	Step     int64
	Err      error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q failed at step %d of thread %q: %v", e.Node, e.Step, e.ThreadID, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// ToolInvocationError reports a tool failure. The tool loop converts it into an
// error ToolResult instead of aborting the run.
type ToolInvocationError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %q (call %s) failed: %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolInvocationError) Unwrap() error { return e.Err }

// PersistenceError reports a failure of the checkpoint store.
type PersistenceError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s checkpoint for thread %q: %v", e.Op, e.ThreadID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StreamTransportError reports a failure writing frames to a subscriber.
type StreamTransportError struct {
	Err error
}

func (e *StreamTransportError) Error() string {
	return fmt.Sprintf("stream transport failed: %v", e.Err)
}

func (e *StreamTransportError) Unwrap() error { return e.Err }

package domain

import (
	"encoding/json"
	"time"
)

// StartNode and EndNode are the reserved pseudo-nodes of every graph.
const (
	StartNode = "__start__"
	EndNode   = "__end__"
)

// InputNode names the writer of the caller-supplied input in a checkpoint.
const InputNode = "__input__"

// NodeWrite is the partial state update one node produced during a step.
type NodeWrite struct {
	Node    string          `json:"node"`
	Partial json.RawMessage `json:"partial"`
}

// Checkpoint is an immutable snapshot of an execution taken after a step.
// It is keyed by (ThreadID, Seq). State equals the previous checkpoint's
// state reduced with Writes, in order.
type Checkpoint struct {
	ThreadID  string          `json:"thread_id"`
	Seq       int64           `json:"seq"`
	State     json.RawMessage `json:"state"`
	Next      []string        `json:"next"`
	Writes    []NodeWrite     `json:"writes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Finished reports whether the run recorded by the checkpoint has reached its end.
func (c *Checkpoint) Finished() bool {
	return len(c.Next) == 0 || (len(c.Next) == 1 && c.Next[0] == EndNode)
}

// CheckpointMeta is a lightweight listing entry for a checkpoint.
type CheckpointMeta struct {
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	Next      []string  `json:"next"`
	Nodes     []string  `json:"nodes"`
	CreatedAt time.Time `json:"created_at"`
}

// Meta returns the listing entry for the checkpoint.
func (c *Checkpoint) Meta() CheckpointMeta {
	nodes := make([]string, 0, len(c.Writes))
	for _, w := range c.Writes {
		nodes = append(nodes, w.Node)
	}
	return CheckpointMeta{
		ThreadID:  c.ThreadID,
		Seq:       c.Seq,
		Next:      c.Next,
		Nodes:     nodes,
		CreatedAt: c.CreatedAt,
	}
}

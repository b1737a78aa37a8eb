package ports

import (
	"context"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// CheckpointStore defines the interface for persisting execution checkpoints.
// Checkpoints are append-only: a saved (thread, seq) pair is never overwritten.
// This is what makes "Stop & Resume" across process restarts possible.
type CheckpointStore interface {
	// Save durably appends a checkpoint. It returns domain.ErrCheckpointExists
	// when a checkpoint with the same thread id and sequence number already exists.
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Load retrieves the checkpoint with the highest sequence number for a thread.
	// Returns domain.ErrThreadNotFound if the thread has no checkpoint.
	Load(ctx context.Context, threadID string) (*domain.Checkpoint, error)

	// History lists the checkpoints of a thread in ascending sequence order.
	History(ctx context.Context, threadID string) ([]domain.CheckpointMeta, error)

	// Delete removes every checkpoint of a thread.
	Delete(ctx context.Context, threadID string) error

	// List returns the ids of all threads with at least one checkpoint.
	List(ctx context.Context) ([]string, error)
}

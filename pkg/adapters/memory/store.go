package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use. Checkpoints are copied on the way in and the way
// out so callers cannot mutate stored history.
type Store struct {
	data map[string][]*domain.Checkpoint
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]*domain.Checkpoint),
	}
}

// Save appends a checkpoint.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	copied := clone(cp)

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.data[cp.ThreadID]
	idx := sort.Search(len(history), func(i int) bool { return history[i].Seq >= cp.Seq })
	if idx < len(history) && history[idx].Seq == cp.Seq {
		return domain.ErrCheckpointExists
	}
	history = append(history, nil)
	copy(history[idx+1:], history[idx:])
	history[idx] = copied
	s.data[cp.ThreadID] = history
	return nil
}

// Load retrieves the latest checkpoint.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[threadID]
	if len(history) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return clone(history[len(history)-1]), nil
}

// History lists the checkpoints of a thread in order.
func (s *Store) History(ctx context.Context, threadID string) ([]domain.CheckpointMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[threadID]
	if len(history) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	metas := make([]domain.CheckpointMeta, 0, len(history))
	for _, cp := range history {
		metas = append(metas, cp.Meta())
	}
	return metas, nil
}

// Delete removes every checkpoint of a thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

// List returns the known threads.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]string, 0, len(s.data))
	for id := range s.data {
		threads = append(threads, id)
	}
	sort.Strings(threads)
	return threads, nil
}

func clone(cp *domain.Checkpoint) *domain.Checkpoint {
	out := *cp
	out.State = append([]byte(nil), cp.State...)
	out.Next = append([]string(nil), cp.Next...)
	out.Writes = make([]domain.NodeWrite, len(cp.Writes))
	for i, w := range cp.Writes {
		out.Writes[i] = domain.NodeWrite{Node: w.Node, Partial: append([]byte(nil), w.Partial...)}
	}
	return &out
}

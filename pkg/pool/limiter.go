package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

// Limiter bounds how many callers use a shared resource at once.
// A nil Limiter or one created with size <= 0 never blocks.
type Limiter struct {
	sem    *semaphore.Weighted
	size   int64
	inUse  atomic.Int64
	waited atomic.Int64
}

// NewLimiter creates a limiter with size slots.
func NewLimiter(size int) *Limiter {
	if size <= 0 {
		return &Limiter{}
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Do borrows a slot for the duration of fn. The slot is returned on every
// exit path, including panics.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if l == nil || l.sem == nil {
		return fn(ctx)
	}
	if !l.sem.TryAcquire(1) {
		l.waited.Add(1)
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	l.inUse.Add(1)
	defer func() {
		l.inUse.Add(-1)
		l.sem.Release(1)
	}()
	return fn(ctx)
}

// Stats reports limiter occupancy.
type Stats struct {
	Size   int64 `json:"size"`
	InUse  int64 `json:"in_use"`
	Waited int64 `json:"waited"`
}

// Stats returns a snapshot of the limiter occupancy.
func (l *Limiter) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	return Stats{Size: l.size, InUse: l.inUse.Load(), Waited: l.waited.Load()}
}

// Model bounds concurrent calls to a model.
func Model(m ports.Model, l *Limiter) ports.Model {
	return &model{next: m, limiter: l}
}

type model struct {
	next    ports.Model
	limiter *Limiter
}

func (m *model) Complete(ctx context.Context, req ports.ModelRequest, onDelta ports.DeltaFunc) (ports.ModelResponse, error) {
	var resp ports.ModelResponse
	err := m.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = m.next.Complete(ctx, req, onDelta)
		return err
	})
	return resp, err
}

// Tool bounds concurrent invocations of a tool.
func Tool(t ports.Tool, l *Limiter) ports.Tool {
	return &tool{Tool: t, limiter: l}
}

type tool struct {
	ports.Tool
	limiter *Limiter
}

func (t *tool) Invoke(ctx context.Context, args map[string]any, rc domain.RunContext) (string, error) {
	var out string
	err := t.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.Tool.Invoke(ctx, args, rc)
		return err
	})
	return out, err
}

// Store bounds concurrent operations on a checkpoint store.
func Store(s ports.CheckpointStore, l *Limiter) ports.CheckpointStore {
	return &store{next: s, limiter: l}
}

type store struct {
	next    ports.CheckpointStore
	limiter *Limiter
}

func (s *store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	return s.limiter.Do(ctx, func(ctx context.Context) error { return s.next.Save(ctx, cp) })
}

func (s *store) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		cp, err = s.next.Load(ctx, threadID)
		return err
	})
	return cp, err
}

func (s *store) History(ctx context.Context, threadID string) ([]domain.CheckpointMeta, error) {
	var out []domain.CheckpointMeta
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.next.History(ctx, threadID)
		return err
	})
	return out, err
}

func (s *store) Delete(ctx context.Context, threadID string) error {
	return s.limiter.Do(ctx, func(ctx context.Context) error { return s.next.Delete(ctx, threadID) })
}

func (s *store) List(ctx context.Context) ([]string, error) {
	var out []string
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.next.List(ctx)
		return err
	})
	return out, err
}

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/domain"
)

// Broker fans checkpoint events out to server-sent event subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // thread id -> channels
	logger      *slog.Logger
}

// NewBroker creates an empty broker. A nil logger discards output.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broker{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for a thread. The returned func
// unregisters and closes it.
func (b *Broker) Subscribe(threadID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := b.subscribers[threadID]; !ok {
		b.subscribers[threadID] = make(map[chan<- string]struct{})
	}
	b.subscribers[threadID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subscribers[threadID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(b.subscribers, threadID)
				}
			}
		})
	}
}

// Publish delivers msg to the thread's subscribers. Slow subscribers with a
// full buffer miss the message.
func (b *Broker) Publish(threadID, msg string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[threadID] {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("SSE: Client buffer full, dropping message", "thread_id", threadID)
		}
	}
}

// Subscribers returns the number of subscribers of a thread.
func (b *Broker) Subscribers(threadID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[threadID])
}

// Hooks publishes every saved checkpoint as a JSON event.
func (b *Broker) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCheckpoint: func(_ context.Context, e *domain.CheckpointEvent) {
			raw, err := json.Marshal(e)
			if err != nil {
				return
			}
			b.Publish(e.ThreadID, string(raw))
		},
	}
}

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

// Policy decides what happens when a thread lease is already held.
type Policy int

const (
	// Queue waits until the lease is released or the context ends.
	Queue Policy = iota
	// Reject fails immediately with domain.ErrThreadBusy.
	Reject
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "queue":
		return Queue, nil
	case "reject":
		return Reject, nil
	}
	return Queue, fmt.Errorf("unknown lease policy %q", s)
}

// DefaultLeaseTTL bounds how long a distributed lease survives a crashed holder.
const DefaultLeaseTTL = 5 * time.Minute

// lockEntry holds the per-thread slot and the reference count.
type lockEntry struct {
	slot chan struct{}
	refs int
}

// Manager grants an exclusive lease per thread so that exactly one execution
// writes checkpoints for a thread at a time. Different threads never contend.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active leases

	locker ports.DistributedLocker // Optional distributed locker
	policy Policy
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithPolicy selects queueing or rejection for busy threads.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithLeaseTTL sets the expiry of distributed leases.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a lease manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks:  make(map[string]*lockEntry),
		ttl:    DefaultLeaseTTL,
		logger: logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(threadID) when done with the entry.
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{slot: make(chan struct{}, 1)}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// Held reports whether a lease for threadID is currently held in this process.
func (m *Manager) Held(threadID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.locks[threadID]
	return ok && len(entry.slot) > 0
}

// WithLease executes fn while holding the exclusive lease for threadID.
func (m *Manager) WithLease(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	defer m.release(threadID)

	switch m.policy {
	case Reject:
		select {
		case entry.slot <- struct{}{}:
		default:
			return fmt.Errorf("thread %q: %w", threadID, domain.ErrThreadBusy)
		}
	default:
		select {
		case entry.slot <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer func() { <-entry.slot }()

	if m.locker != nil {
		unlock, err := m.lockDistributed(ctx, threadID)
		if err != nil {
			return err
		}
		defer func() {
			// The run context may already be canceled; release on a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := unlock(releaseCtx); err != nil {
				m.logger.Warn("Failed to release distributed lease (will expire via TTL)",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	m.logger.Debug("Lease acquired", "thread_id", threadID)
	return fn(ctx)
}

func (m *Manager) lockDistributed(ctx context.Context, threadID string) (ports.UnlockFunc, error) {
	if m.policy == Reject {
		unlock, ok, err := m.locker.TryLock(ctx, threadID, m.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire distributed lease: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("thread %q: %w", threadID, domain.ErrThreadBusy)
		}
		return unlock, nil
	}
	unlock, err := m.locker.Lock(ctx, threadID, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire distributed lease: %w", err)
	}
	return unlock, nil
}

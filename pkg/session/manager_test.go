package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializesSameThread(t *testing.T) {
	manager := session.NewManager()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLease(ctx, "race-test", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond) // Simulate IO
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive, "at most one holder per thread")
}

func TestManager_DifferentThreadsRunInParallel(t *testing.T) {
	manager := session.NewManager()
	ctx := context.Background()

	inA := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = manager.WithLease(ctx, "a", func(context.Context) error {
			close(inA)
			<-done
			return nil
		})
	}()
	<-inA

	err := manager.WithLease(ctx, "b", func(context.Context) error { return nil })
	close(done)
	assert.NoError(t, err)
}

func TestManager_RejectPolicy(t *testing.T) {
	manager := session.NewManager(session.WithPolicy(session.Reject))
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = manager.WithLease(ctx, "busy", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	assert.True(t, manager.Held("busy"))

	err := manager.WithLease(ctx, "busy", func(context.Context) error {
		t.Fatal("must not run while the lease is held")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrThreadBusy)
	close(release)
}

func TestManager_QueueHonorsContext(t *testing.T) {
	manager := session.NewManager()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = manager.WithLease(context.Background(), "slow", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := manager.WithLease(ctx, "slow", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_ReleasesOnError(t *testing.T) {
	manager := session.NewManager(session.WithPolicy(session.Reject))
	ctx := context.Background()
	boom := errors.New("boom")

	err := manager.WithLease(ctx, "t", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = manager.WithLease(ctx, "t", func(context.Context) error { return nil })
	assert.NoError(t, err, "lease must be free after a failed holder")
}

type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]bool
	unlocks int
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	unlock, _, err := f.TryLock(ctx, key, ttl)
	return unlock, err
}

func (f *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (ports.UnlockFunc, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, false, nil
	}
	f.held[key] = true
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
		f.unlocks++
		return nil
	}, true, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{}}
	manager := session.NewManager(session.WithLocker(locker), session.WithPolicy(session.Reject))
	ctx := context.Background()

	err := manager.WithLease(ctx, "t1", func(context.Context) error {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		assert.True(t, locker.held["t1"])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, locker.unlocks)

	// Another replica holds the lock.
	locker.held["t2"] = true
	err = manager.WithLease(ctx, "t2", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrThreadBusy)
}

func TestParsePolicy(t *testing.T) {
	p, err := session.ParsePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, session.Reject, p)

	p, err = session.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, session.Queue, p)

	_, err = session.ParsePolicy("drop")
	assert.Error(t, err)
}

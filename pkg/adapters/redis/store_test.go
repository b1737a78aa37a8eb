package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/mindgraph/pkg/adapters/redis"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newStore(t)
	ports.RunCheckpointStoreContract(t, store)
}

func TestRedisStore_KeysUsePrefix(t *testing.T) {
	store, mr := newStore(t, redis.WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Checkpoint{ThreadID: "t1", Seq: 0, State: json.RawMessage(`{}`)}))

	assert.True(t, mr.Exists("test:checkpoints:t1"))
	assert.True(t, mr.Exists("test:seq:t1"))
	assert.True(t, mr.Exists("test:threads"))
}

func TestRedisStore_TTLPrunesIndex(t *testing.T) {
	store, mr := newStore(t, redis.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Checkpoint{ThreadID: "t1", Seq: 0, State: json.RawMessage(`{}`)}))
	assert.Equal(t, time.Minute, mr.TTL(redis.DefaultPrefix+"checkpoints:t1"))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestRedisStore_UnindexedSlotIsReplaced(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Checkpoint{ThreadID: "t1", Seq: 0, State: json.RawMessage(`{"n":0}`)}))

	// A body that never reached the sequence index.
	mr.HSet(redis.DefaultPrefix+"checkpoints:t1", "1", `{"thread_id":"t1","seq":1,"state":{"n":-1}}`)

	cp, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp.Seq)

	require.NoError(t, store.Save(ctx, &domain.Checkpoint{ThreadID: "t1", Seq: 1, State: json.RawMessage(`{"n":1}`)}))

	cp, err = store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Seq)
	assert.JSONEq(t, `{"n":1}`, string(cp.State))

	err = store.Save(ctx, &domain.Checkpoint{ThreadID: "t1", Seq: 1, State: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, domain.ErrCheckpointExists)

	history, err := store.History(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

package ports

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	threadID := "contract-thread-" + time.Now().Format("20060102150405.000000000")

	checkpoint := func(id string, seq int64, state string, next ...string) *domain.Checkpoint {
		return &domain.Checkpoint{
			ThreadID:  id,
			Seq:       seq,
			State:     json.RawMessage(state),
			Next:      next,
			Writes:    []domain.NodeWrite{{Node: "n", Partial: json.RawMessage(`{"x":1}`)}},
			CreatedAt: time.Now().UTC(),
		}
	}

	t.Run("Save and Load latest", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, checkpoint(threadID, 0, `{"count":0}`, "a")))
		require.NoError(t, store.Save(ctx, checkpoint(threadID, 1, `{"count":1}`, "b")))
		require.NoError(t, store.Save(ctx, checkpoint(threadID, 2, `{"count":2}`, domain.EndNode)))

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), loaded.Seq)
		assert.Equal(t, threadID, loaded.ThreadID)
		assert.JSONEq(t, `{"count":2}`, string(loaded.State))
		assert.Equal(t, []string{domain.EndNode}, loaded.Next)
		require.Len(t, loaded.Writes, 1)
		assert.Equal(t, "n", loaded.Writes[0].Node)
		assert.JSONEq(t, `{"x":1}`, string(loaded.Writes[0].Partial))
	})

	t.Run("Append-only", func(t *testing.T) {
		err := store.Save(ctx, checkpoint(threadID, 1, `{"count":99}`, "z"))
		assert.ErrorIs(t, err, domain.ErrCheckpointExists)

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"count":2}`, string(loaded.State), "existing checkpoints must not be overwritten")
	})

	t.Run("History in order", func(t *testing.T) {
		history, err := store.History(ctx, threadID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		for i, meta := range history {
			assert.Equal(t, int64(i), meta.Seq)
		}
		assert.Equal(t, []string{"n"}, history[0].Nodes)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)

		_, err = store.History(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Concurrent duplicate save has one winner", func(t *testing.T) {
		id := threadID + "-race"
		defer func() { _ = store.Delete(ctx, id) }()

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.Save(ctx, checkpoint(id, 0, `{}`, "a"))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrCheckpointExists)
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("List", func(t *testing.T) {
		id1 := threadID + "-1"
		id2 := threadID + "-2"
		require.NoError(t, store.Save(ctx, checkpoint(id1, 0, `{}`, "a")))
		require.NoError(t, store.Save(ctx, checkpoint(id2, 0, `{}`, "a")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, threadID))

		_, err := store.Load(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound, "Load after Delete should return ErrThreadNotFound")

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, threads, threadID)

		// A deleted thread can start over from seq 0.
		require.NoError(t, store.Save(ctx, checkpoint(threadID, 0, `{}`, "a")))
		require.NoError(t, store.Delete(ctx, threadID))
	})
}

package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"testing"

	"github.com/aretw0/mindgraph/pkg/adapters/memory"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/persistence/middleware"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func secretCheckpoint(seq int64) *domain.Checkpoint {
	return &domain.Checkpoint{
		ThreadID: "secure-thread",
		Seq:      seq,
		State:    json.RawMessage(`{"messages":["my-secret-sauce"]}`),
		Next:     []string{"tool-execution"},
		Writes:   []domain.NodeWrite{{Node: "model-call", Partial: json.RawMessage(`{"messages":["my-secret-sauce"]}`)}},
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunCheckpointStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	require.NoError(t, secure.Save(ctx, secretCheckpoint(0)))

	stored, err := underlying.Load(ctx, "secure-thread")
	require.NoError(t, err)
	assert.NotContains(t, string(stored.State), "my-secret-sauce")
	assert.Contains(t, string(stored.State), "__encrypted__")
	require.Len(t, stored.Writes, 1)
	assert.Equal(t, "model-call", stored.Writes[0].Node, "writer names stay in clear")
	assert.NotContains(t, string(stored.Writes[0].Partial), "my-secret-sauce")
	assert.Equal(t, []string{"tool-execution"}, stored.Next)

	loaded, err := secure.Load(ctx, "secure-thread")
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages":["my-secret-sauce"]}`, string(loaded.State))
	assert.JSONEq(t, `{"messages":["my-secret-sauce"]}`, string(loaded.Writes[0].Partial))

	history, err := secure.History(ctx, "secure-thread")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"model-call"}, history[0].Nodes)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, oldStore.Save(ctx, secretCheckpoint(0)))

	newStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := newStore.Load(ctx, "secure-thread")
	require.NoError(t, err, "fallback key must decrypt old checkpoints")
	assert.Contains(t, string(loaded.State), "my-secret-sauce")

	require.NoError(t, newStore.Save(ctx, secretCheckpoint(1)))

	_, err = oldStore.Load(ctx, "secure-thread")
	assert.Error(t, err, "old key alone cannot read checkpoints sealed with the new key")
}

func TestEncryptionMiddleware_RejectsPlainCheckpoint(t *testing.T) {
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(context.Background(), secretCheckpoint(0)))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Load(context.Background(), "secure-thread")
	assert.ErrorContains(t, err, "envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

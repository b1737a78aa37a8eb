package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/mindgraph/pkg/adapters/sqlite"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, openStore(t, filepath.Join(t.TempDir(), "mindgraph.db")))
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mindgraph.db")
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Millisecond)

	first, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, &domain.Checkpoint{
		ThreadID:  "t1",
		Seq:       0,
		State:     json.RawMessage(`{"messages":[]}`),
		Next:      []string{"model-call"},
		CreatedAt: created,
	}))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	cp, err := second.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"model-call"}, cp.Next)
	assert.JSONEq(t, `{"messages":[]}`, string(cp.State))
	assert.True(t, created.Equal(cp.CreatedAt))
}

func TestSQLiteStore_OpenRequiresPath(t *testing.T) {
	_, err := sqlite.Open("  ")
	assert.Error(t, err)
}

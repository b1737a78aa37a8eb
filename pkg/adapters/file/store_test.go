package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/mindgraph/pkg/adapters/file"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	base := t.TempDir()
	store := file.New(base)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Checkpoint{ThreadID: "user/42", Seq: 7, State: json.RawMessage(`{}`)}))

	_, err := os.Stat(filepath.Join(base, "user%2F42", "00000000000000000007.json"))
	assert.NoError(t, err, "thread ids are escaped into a single directory name")

	threads, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user/42"}, threads)

	entries, err := os.ReadDir(filepath.Join(base, "user%2F42"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStore_SequenceOrderIsNumeric(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, seq := range []int64{9, 10, 2} {
		require.NoError(t, store.Save(ctx, &domain.Checkpoint{ThreadID: "t", Seq: seq, State: json.RawMessage(`{}`)}))
	}

	latest, err := store.Load(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(10), latest.Seq)
}

func TestFileStore_RejectsInvalidThreadID(t *testing.T) {
	store := file.New(t.TempDir())
	err := store.Save(context.Background(), &domain.Checkpoint{ThreadID: "..", State: json.RawMessage(`{}`)})
	assert.Error(t, err)
}

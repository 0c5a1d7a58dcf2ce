package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "snapshots.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"traces":[]}`)
	id, err := store.Save(ctx, payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, loaded)
}

func TestLoadUnknownID(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Load(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, []byte(`{"traces":[]}`))
	require.NoError(t, err)
	_, err = store.Save(ctx, []byte(`{"traces":[{"trace_id":"t"}]}`))
	require.NoError(t, err)

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotEmpty(t, records[0].ID)
	assert.Positive(t, records[0].SizeBytes)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "snapshots.db")

	store, err := Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Save(context.Background(), []byte(`{}`))
	assert.NoError(t, err)
}

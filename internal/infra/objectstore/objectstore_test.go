package objectstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "datasets/run.jsonl", []byte("{}\n"), "application/x-ndjson"))

	rc, err := store.Get(ctx, "datasets/run.jsonl")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "{}\n", string(data))

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	exerciseStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStoreConfinesKeysToRoot(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	path, err := store.path("../../etc/passwd")
	require.NoError(t, err)
	require.Equal(t, root+"/etc/passwd", path)

	_, err = store.path("")
	require.Error(t, err)
}

func TestSanitizeEndpoint(t *testing.T) {
	require.Equal(t, "minio:9000", sanitizeEndpoint(" http://minio:9000/bucket "))
	require.Equal(t, "account.r2.cloudflarestorage.com", sanitizeEndpoint("https://account.r2.cloudflarestorage.com"))
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "licenses.json")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	return s, path
}

func TestFileStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	require.NoError(t, s.Put(ctx, "license:VL-AAAA", []byte(`{"status":"active"}`)))

	got, err := s.Get(ctx, "license:VL-AAAA")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"active"}`, string(got))

	_, err = s.Get(ctx, "license:VL-BBBB")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsInvalidJSON(t *testing.T) {
	s, _ := openTestStore(t)

	err := s.Put(context.Background(), "license:VL-AAAA", []byte("not json"))
	require.Error(t, err)
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	require.NoError(t, s.Put(ctx, "device:abc", []byte(`{}`)))
	require.NoError(t, s.Delete(ctx, "device:abc"))

	_, err := s.Get(ctx, "device:abc")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, s.Delete(ctx, "device:abc"))
}

func TestFileStoreListByPrefix(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	require.NoError(t, s.Put(ctx, "license:VL-AAAA", []byte(`{"a":1}`)))
	require.NoError(t, s.Put(ctx, "license:VL-BBBB", []byte(`{"b":2}`)))
	require.NoError(t, s.Put(ctx, "device:abc", []byte(`{"c":3}`)))

	licenses, err := s.List(ctx, "license:")
	require.NoError(t, err)
	assert.Len(t, licenses, 2)
	assert.Contains(t, licenses, "license:VL-AAAA")
	assert.Contains(t, licenses, "license:VL-BBBB")

	devices, err := s.List(ctx, "device:")
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	none, err := s.List(ctx, "other:")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	require.NoError(t, s.Put(ctx, "license:VL-AAAA", []byte(`{"status":"active"}`)))
	require.NoError(t, s.Close(ctx))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, "license:VL-AAAA")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"active"}`, string(got))
}

func TestFileStoreCorruptSnapshotAbortsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o600))

	_, err := OpenFileStore(path)
	require.Error(t, err, "a present-but-unreadable snapshot must abort startup")
}

func TestFileStoreEmptySnapshotIsFine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
}

func TestFileStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "licenses.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "license:VL-AAAA", []byte(`{}`)))

	_, err = os.Stat(path)
	require.NoError(t, err)
}

package authflow_test

import (
	"os"
	"path/filepath"
	"testing"

	authflow "github.com/citypages/go-authflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSessionCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	cache := authflow.NewFileSessionCache(path)

	session := testSession("subject-1")
	require.NoError(t, cache.Store(session))

	loaded, err := cache.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, session.SubjectID, loaded.SubjectID)
	assert.Equal(t, session.AccessToken, loaded.AccessToken)
	assert.Equal(t, session.RefreshToken, loaded.RefreshToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileSessionCacheEmpty(t *testing.T) {
	cache := authflow.NewFileSessionCache(filepath.Join(t.TempDir(), "session.json"))

	loaded, err := cache.Load()
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileSessionCacheCorrupt(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		cache := authflow.NewFileSessionCache(path)
		_, err := cache.Load()
		assert.True(t, authflow.IsCorruptCache(err))
	})

	t.Run("json without a subject", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"email":"x@example.com"}`), 0o600))

		cache := authflow.NewFileSessionCache(path)
		_, err := cache.Load()
		assert.True(t, authflow.IsCorruptCache(err))
	})
}

func TestFileSessionCacheClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	cache := authflow.NewFileSessionCache(path)

	// clearing a missing file is fine
	assert.NoError(t, cache.Clear())

	require.NoError(t, cache.Store(testSession("subject-1")))
	assert.NoError(t, cache.Clear())

	loaded, err := cache.Load()
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileSessionCacheStoreNil(t *testing.T) {
	cache := authflow.NewFileSessionCache(filepath.Join(t.TempDir(), "session.json"))
	assert.ErrorIs(t, cache.Store(nil), authflow.ErrNoSession)
}

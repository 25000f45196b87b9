package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/warden/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string {
	return &s
}

// exerciseBackend checks the load/save contract every backend must honor.
func exerciseBackend(t *testing.T, backend storage.Backend) {
	t.Helper()

	ctx := t.Context()

	doc, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc, "nothing saved yet should load as empty")

	first := storage.Document{
		"100": {WelcomeChannel: "general", ModLogChannel: "mod-log", Prefix: "!"},
	}
	require.NoError(t, backend.Save(ctx, first))

	second := storage.Document{
		"100": {WelcomeChannel: "lobby", ModLogChannel: "audit", AutoRole: ptr("Member"), Prefix: "?"},
		"200": {WelcomeChannel: "general", ModLogChannel: "mod-log", Prefix: "!"},
	}
	require.NoError(t, backend.Save(ctx, second))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, loaded, "a save replaces the whole document")
	assert.Nil(t, loaded["200"].AutoRole)
}

func TestFileBackend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	backend := storage.NewFileBackend(path)
	defer backend.Close()

	exerciseBackend(t, backend)

	// No temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileBackendNullAutoRole(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"42":{"welcome_channel":"general","mod_log_channel":"mod-log","auto_role":null,"prefix":"!"}}`,
	), 0o600))

	doc, err := storage.NewFileBackend(path).Load(t.Context())
	require.NoError(t, err)
	require.Contains(t, doc, "42")
	assert.Nil(t, doc["42"].AutoRole)
	assert.Equal(t, "!", doc["42"].Prefix)
}

func TestFileBackendCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := storage.NewFileBackend(path).Load(t.Context())
	require.ErrorIs(t, err, storage.ErrCorruptDocument)
}

func TestRedisBackend(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	defer client.Close()

	backend := storage.NewRedisBackend(client, "")
	exerciseBackend(t, backend)

	assert.True(t, mr.Exists(storage.DefaultRedisKey))
}

func TestSQLiteBackend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.db")

	backend, err := storage.NewSQLiteBackend(path)
	require.NoError(t, err)

	exerciseBackend(t, backend)
	require.NoError(t, backend.Close())

	// Reopening sees the last saved document
	reopened, err := storage.NewSQLiteBackend(path)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.Load(t.Context())
	require.NoError(t, err)
	assert.Len(t, doc, 2)
}

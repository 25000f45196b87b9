package settings_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/settings"
	"github.com/robalyx/warden/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDiskFull = errors.New("disk full")

// flakyBackend wraps a backend and can fail or block saves on demand.
type flakyBackend struct {
	storage.Backend
	fail    atomic.Bool
	saves   atomic.Int32
	release chan struct{}
	started chan struct{}
}

func (b *flakyBackend) Save(ctx context.Context, doc storage.Document) error {
	b.saves.Add(1)

	if b.started != nil {
		close(b.started)
		<-b.release
	}

	if b.fail.Load() {
		return errDiskFull
	}

	return b.Backend.Save(ctx, doc)
}

func newFileStore(t *testing.T) (*settings.Store, *storage.FileBackend) {
	t.Helper()

	backend := storage.NewFileBackend(filepath.Join(t.TempDir(), "settings.json"))
	store := settings.NewStore(backend, "", zap.NewNop())
	require.NoError(t, store.Load(t.Context()))

	return store, backend
}

func TestGetCreatesAndPersistsDefaults(t *testing.T) {
	t.Parallel()

	store, backend := newFileStore(t)
	guildID := snowflake.ID(123456789)

	got, err := store.Get(t.Context(), guildID)
	require.NoError(t, err)
	assert.Equal(t, settings.GuildSettings{
		GuildID:        guildID,
		WelcomeChannel: "general",
		ModLogChannel:  "mod-log",
		Prefix:         "!",
	}, got)
	assert.False(t, got.HasAutoRole())

	// The persisted document holds the exact default record
	doc, err := backend.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, storage.Document{
		"123456789": {WelcomeChannel: "general", ModLogChannel: "mod-log", AutoRole: nil, Prefix: "!"},
	}, doc)

	// A fresh store over the same document sees the record
	reloaded := settings.NewStore(backend, "", zap.NewNop())
	require.NoError(t, reloaded.Load(t.Context()))

	again, err := reloaded.Get(t.Context(), guildID)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestGetConcurrentFirstAccess(t *testing.T) {
	t.Parallel()

	inner := storage.NewFileBackend(filepath.Join(t.TempDir(), "settings.json"))
	backend := &flakyBackend{Backend: inner}
	store := settings.NewStore(backend, "", zap.NewNop())
	guildID := snowflake.ID(42)

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Get(context.Background(), guildID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.Snapshot(), 1)
	assert.Equal(t, int32(1), backend.saves.Load(), "defaults are persisted once")
}

func TestSetReadAfterWrite(t *testing.T) {
	t.Parallel()

	store, backend := newFileStore(t)
	ctx := t.Context()
	guildID := snowflake.ID(7)

	tests := []struct {
		field  settings.Field
		value  string
		verify func(t *testing.T, s settings.GuildSettings)
	}{
		{settings.FieldWelcome, "lobby", func(t *testing.T, s settings.GuildSettings) {
			assert.Equal(t, "lobby", s.WelcomeChannel)
		}},
		{settings.FieldModLog, "audit-log", func(t *testing.T, s settings.GuildSettings) {
			assert.Equal(t, "audit-log", s.ModLogChannel)
		}},
		{settings.FieldAutoRole, "Member", func(t *testing.T, s settings.GuildSettings) {
			assert.Equal(t, "Member", s.AutoRole)
		}},
		{settings.FieldPrefix, "?", func(t *testing.T, s settings.GuildSettings) {
			assert.Equal(t, "?", s.Prefix)
		}},
	}

	for _, tt := range tests {
		updated, err := store.Set(ctx, guildID, tt.field, tt.value)
		require.NoError(t, err, tt.field.String())
		tt.verify(t, updated)

		current, err := store.Get(ctx, guildID)
		require.NoError(t, err)
		tt.verify(t, current)
	}

	doc, err := backend.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, doc["7"].AutoRole)
	assert.Equal(t, "Member", *doc["7"].AutoRole)
	assert.Equal(t, "?", doc["7"].Prefix)
}

func TestSetClearsAutoRole(t *testing.T) {
	t.Parallel()

	store, backend := newFileStore(t)
	ctx := t.Context()

	_, err := store.Set(ctx, 1, settings.FieldAutoRole, "Member")
	require.NoError(t, err)

	updated, err := store.Set(ctx, 1, settings.FieldAutoRole, "none")
	require.NoError(t, err)
	assert.False(t, updated.HasAutoRole())

	doc, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc["1"].AutoRole)
}

func TestSetRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	store, _ := newFileStore(t)

	tests := []struct {
		name  string
		field settings.Field
		value string
	}{
		{"empty prefix", settings.FieldPrefix, "  "},
		{"prefix with space", settings.FieldPrefix, "a b"},
		{"empty welcome", settings.FieldWelcome, ""},
		{"empty modlog", settings.FieldModLog, ""},
		{"unknown field", settings.Field(99), "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Set(t.Context(), 1, tt.field, tt.value)
			require.ErrorIs(t, err, settings.ErrInvalidValue)
		})
	}
}

func TestSetPersistFailureIsSurfaced(t *testing.T) {
	t.Parallel()

	inner := storage.NewFileBackend(filepath.Join(t.TempDir(), "settings.json"))
	backend := &flakyBackend{Backend: inner}
	store := settings.NewStore(backend, "", zap.NewNop())
	ctx := t.Context()

	_, err := store.Get(ctx, 5)
	require.NoError(t, err)

	backend.fail.Store(true)

	updated, err := store.Set(ctx, 5, settings.FieldWelcome, "lobby")
	require.ErrorIs(t, err, settings.ErrPersistFailed)
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, "lobby", updated.WelcomeChannel, "in-memory value is tentatively updated")

	// Disk still holds the old value
	doc, err := inner.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "general", doc["5"].WelcomeChannel)

	// First access of a new guild still returns defaults alongside the error
	created, err := store.Get(ctx, 6)
	require.ErrorIs(t, err, settings.ErrPersistFailed)
	assert.Equal(t, "general", created.WelcomeChannel)
}

func TestConcurrentSetsOnDifferentFields(t *testing.T) {
	t.Parallel()

	store, backend := newFileStore(t)
	ctx := t.Context()
	guildID := snowflake.ID(99)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := store.Set(ctx, guildID, settings.FieldWelcome, "lobby")
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := store.Set(ctx, guildID, settings.FieldModLog, "audit")
		assert.NoError(t, err)
	}()
	wg.Wait()

	doc, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lobby", doc["99"].WelcomeChannel)
	assert.Equal(t, "audit", doc["99"].ModLogChannel)
}

func TestCloseWaitsForInflightPersist(t *testing.T) {
	t.Parallel()

	inner := storage.NewFileBackend(filepath.Join(t.TempDir(), "settings.json"))
	backend := &flakyBackend{
		Backend: inner,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := settings.NewStore(backend, "", zap.NewNop())

	getDone := make(chan error, 1)
	go func() {
		_, err := store.Get(context.Background(), 1)
		getDone <- err
	}()

	<-backend.started

	closeDone := make(chan struct{})
	go func() {
		assert.NoError(t, store.Close())
		close(closeDone)
	}()

	select {
	case <-closeDone:
		t.Fatal("Close returned before the in-flight write finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.release)
	require.NoError(t, <-getDone)
	<-closeDone

	doc, err := inner.Load(t.Context())
	require.NoError(t, err)
	assert.Contains(t, doc, "1")

	_, err = store.Set(t.Context(), 1, settings.FieldPrefix, "?")
	require.ErrorIs(t, err, settings.ErrStoreClosed)
}

func TestLoadSkipsInvalidKeys(t *testing.T) {
	t.Parallel()

	backend := storage.NewFileBackend(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, backend.Save(t.Context(), storage.Document{
		"not-a-number": {Prefix: "!"},
		"10":           {WelcomeChannel: "hi", ModLogChannel: "log", Prefix: "$"},
	}))

	store := settings.NewStore(backend, "", zap.NewNop())
	require.NoError(t, store.Load(t.Context()))

	got, err := store.Get(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, "$", got.Prefix)
	assert.Len(t, store.Snapshot(), 1)
}

func TestLoadFillsMissingFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"1":{"welcome_channel":"lobby","mod_log_channel":"audit"},"2":{"prefix":"?","auto_role":"Member"}}`,
	), 0o600))

	store := settings.NewStore(storage.NewFileBackend(path), "!", zap.NewNop())
	require.NoError(t, store.Load(t.Context()))

	first, err := store.Get(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, "!", first.Prefix)
	assert.Equal(t, "lobby", first.WelcomeChannel)
	assert.Equal(t, "audit", first.ModLogChannel)

	second, err := store.Get(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, "?", second.Prefix)
	assert.Equal(t, settings.DefaultWelcomeChannel, second.WelcomeChannel)
	assert.Equal(t, settings.DefaultModLogChannel, second.ModLogChannel)
	assert.Equal(t, "Member", second.AutoRole)
}

func TestDefaultPrefixOverride(t *testing.T) {
	t.Parallel()

	backend := storage.NewFileBackend(filepath.Join(t.TempDir(), "settings.json"))
	store := settings.NewStore(backend, "%", zap.NewNop())

	got, err := store.Get(t.Context(), 3)
	require.NoError(t, err)
	assert.Equal(t, "%", got.Prefix)
}

func TestFieldString(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"welcome", "modlog", "autorole", "prefix"} {
		field, err := settings.FieldString(name)
		require.NoError(t, err)
		assert.Equal(t, name, field.String())
	}

	_, err := settings.FieldString("nickname")
	require.Error(t, err)
}

package audit_test

import (
	"path/filepath"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/moderation/audit"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/memory"
	"github.com/robalyx/warden/internal/settings"
	"github.com/robalyx/warden/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const guildID = snowflake.ID(1)

func setup(t *testing.T) (*audit.Logger, *memory.Platform, *settings.Store) {
	t.Helper()

	p := memory.New()
	store := settings.NewStore(
		storage.NewFileBackend(filepath.Join(t.TempDir(), "settings.json")), "", zap.NewNop(),
	)

	return audit.NewLogger(p, store, zap.NewNop()), p, store
}

func TestLogWritesRecord(t *testing.T) {
	t.Parallel()

	logger, p, _ := setup(t)
	modLog := p.AddChannel(guildID, "mod-log")
	actor := p.AddMember(guildID, "alice")
	target := p.AddMember(guildID, "mallory")

	entry := audit.NewEntry(audit.KindKick, target, actor, "spamming links")

	written, err := logger.Log(t.Context(), guildID, entry)
	require.NoError(t, err)
	assert.True(t, written)

	sent := p.Sent(modLog.ID)
	require.Len(t, sent, 1)

	embed := sent[0].Message.Embed
	require.NotNil(t, embed)
	assert.Equal(t, "Member Kicked", embed.Title)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "Target", embed.Fields[0].Name)
	assert.Contains(t, embed.Fields[0].Value, target.Mention())
	assert.Equal(t, "Moderator", embed.Fields[1].Name)
	assert.Contains(t, embed.Fields[1].Value, actor.Mention())
	assert.Equal(t, "Reason", embed.Fields[2].Name)
	assert.Equal(t, "spamming links", embed.Fields[2].Value)
	assert.Contains(t, embed.Footer, entry.ID.String())
}

func TestLogOmitsEmptyReason(t *testing.T) {
	t.Parallel()

	logger, p, _ := setup(t)
	modLog := p.AddChannel(guildID, "mod-log")

	entry := audit.NewEntry(audit.KindMute, platform.Member{ID: 5}, platform.Member{ID: 6}, "")

	_, err := logger.Log(t.Context(), guildID, entry)
	require.NoError(t, err)

	sent := p.Sent(modLog.ID)
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Message.Embed.Fields, 2)
}

func TestLogUsesConfiguredChannel(t *testing.T) {
	t.Parallel()

	logger, p, store := setup(t)
	defaultLog := p.AddChannel(guildID, "mod-log")
	custom := p.AddChannel(guildID, "audit")

	_, err := store.Set(t.Context(), guildID, settings.FieldModLog, "audit")
	require.NoError(t, err)

	_, err = logger.Log(t.Context(), guildID, audit.NewEntry(audit.KindBan, platform.Member{ID: 5}, platform.Member{ID: 6}, ""))
	require.NoError(t, err)

	assert.Len(t, p.Sent(custom.ID), 1)
	assert.Empty(t, p.Sent(defaultLog.ID))
}

func TestLogSkipsUnresolvedChannel(t *testing.T) {
	t.Parallel()

	logger, p, _ := setup(t)
	p.AddChannel(guildID, "general")

	written, err := logger.Log(t.Context(), guildID, audit.NewEntry(audit.KindBan, platform.Member{ID: 5}, platform.Member{ID: 6}, ""))
	require.NoError(t, err)
	assert.False(t, written)
	assert.Zero(t, p.Calls(memory.OpSendMessage))
}

func TestKindNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"kick", "ban", "mute", "unmute"}, audit.KindStrings())

	kind, err := audit.KindString("Unmute")
	require.NoError(t, err)
	assert.Equal(t, audit.KindUnmute, kind)
}

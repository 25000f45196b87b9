package commands_test

import (
	"errors"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/bot/commands"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/memory"
	"github.com/robalyx/warden/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guildID = snowflake.ID(1)

func message(content string) platform.InboundMessage {
	return platform.InboundMessage{
		ID:        10,
		GuildID:   guildID,
		ChannelID: 20,
		Author:    platform.Member{ID: 30, GuildID: guildID, Username: "alice"},
		Content:   content,
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	parser := commands.NewParser(commands.NewRegistry())

	tests := []struct {
		name    string
		content string
		prefix  string
		isCmd   bool
		command string
		args    []string
		rest    string
		wantErr error
	}{
		{
			name:    "plain message",
			content: "hello there",
			prefix:  "!",
		},
		{
			name:    "prefix only",
			content: "!   ",
			prefix:  "!",
		},
		{
			name:    "kick with reason",
			content: "!kick <@123>   posting   scam links",
			prefix:  "!",
			isCmd:   true,
			command: commands.NameKick,
			args:    []string{"<@123>", "posting", "scam", "links"},
			rest:    "posting   scam links",
		},
		{
			name:    "case folded name",
			content: "!BaN 123",
			prefix:  "!",
			isCmd:   true,
			command: commands.NameBan,
			args:    []string{"123"},
		},
		{
			name:    "full width name",
			content: "!ｃｌｅａｒ 5",
			prefix:  "!",
			isCmd:   true,
			command: commands.NameClear,
			args:    []string{"5"},
		},
		{
			name:    "multi character prefix",
			content: "w! help",
			prefix:  "w!",
			isCmd:   true,
			command: commands.NameHelp,
		},
		{
			name:    "other prefix ignored",
			content: "!help",
			prefix:  "?",
		},
		{
			name:    "unknown command",
			content: "!frobnicate",
			prefix:  "!",
			isCmd:   true,
			wantErr: commands.ErrUnknownCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inv, isCmd, err := parser.Parse(message(tt.content), tt.prefix)
			assert.Equal(t, tt.isCmd, isCmd)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			if !tt.isCmd {
				return
			}

			assert.Equal(t, tt.command, inv.Definition.Name)
			assert.Equal(t, tt.args, inv.Args)
			assert.Equal(t, tt.rest, inv.Rest)
			assert.Equal(t, guildID, inv.GuildID)
			assert.Equal(t, snowflake.ID(20), inv.ChannelID)
			assert.Equal(t, snowflake.ID(30), inv.Author.ID)
		})
	}
}

func TestInvocationArg(t *testing.T) {
	t.Parallel()

	inv, _, err := commands.NewParser(commands.NewRegistry()).Parse(message("!mute"), "!")
	require.NoError(t, err)
	assert.Nil(t, inv.Args)
	assert.Empty(t, inv.Rest)

	_, err = inv.Arg(0)
	require.ErrorIs(t, err, commands.ErrMissingArgument)
	assert.Contains(t, err.Error(), "mute <@member>")
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	for _, arg := range []string{"<@123456789012345678>", "<@!123456789012345678>", "123456789012345678"} {
		id, err := commands.ParseTarget(arg)
		require.NoError(t, err, arg)
		assert.Equal(t, snowflake.ID(123456789012345678), id)
	}

	for _, arg := range []string{"@someone", "<#123>", "<@abc>", "0", ""} {
		_, err := commands.ParseTarget(arg)
		require.ErrorIs(t, err, commands.ErrInvalidTarget, arg)
	}
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	n, err := commands.ParseAmount("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = commands.ParseAmount("lots")
	require.ErrorIs(t, err, commands.ErrInvalidAmount)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	registry := commands.NewRegistry()

	required := map[string]platform.Capability{
		commands.NameKick:        platform.CapabilityKickMembers,
		commands.NameBan:         platform.CapabilityBanMembers,
		commands.NameMute:        platform.CapabilityManageRoles,
		commands.NameUnmute:      platform.CapabilityManageRoles,
		commands.NameClear:       platform.CapabilityManageMessages,
		commands.NameSetWelcome:  platform.CapabilityAdministrator,
		commands.NameSetModLog:   platform.CapabilityAdministrator,
		commands.NameSetAutoRole: platform.CapabilityAdministrator,
		commands.NameSetPrefix:   platform.CapabilityAdministrator,
		commands.NameHelp:        platform.CapabilityNone,
	}

	assert.Len(t, registry.All(), len(required))

	for name, capability := range required {
		def, ok := registry.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, capability, def.Capability, name)
	}

	def, _ := registry.Lookup(commands.NameSetAutoRole)
	require.NotNil(t, def.Field)
	assert.Equal(t, settings.FieldAutoRole, *def.Field)

	def, _ = registry.Lookup(commands.NameKick)
	assert.Nil(t, def.Field)
}

func TestGate(t *testing.T) {
	t.Parallel()

	p := memory.New()
	moderator := p.AddMember(guildID, "alice", platform.CapabilityKickMembers)
	admin := p.AddMember(guildID, "root", platform.CapabilityAdministrator)
	member := p.AddMember(guildID, "bob")

	registry := commands.NewRegistry()
	gate := commands.NewGate(p)

	invoke := func(name string, author platform.Member) commands.Invocation {
		def, ok := registry.Lookup(name)
		require.True(t, ok)
		return commands.Invocation{Definition: def, GuildID: guildID, Author: author}
	}

	require.NoError(t, gate.Authorize(t.Context(), invoke(commands.NameKick, moderator)))
	require.NoError(t, gate.Authorize(t.Context(), invoke(commands.NameBan, admin)))
	require.NoError(t, gate.Authorize(t.Context(), invoke(commands.NameHelp, member)))

	require.ErrorIs(t, gate.Authorize(t.Context(), invoke(commands.NameBan, moderator)), commands.ErrPermissionDenied)
	require.ErrorIs(t, gate.Authorize(t.Context(), invoke(commands.NameKick, member)), commands.ErrPermissionDenied)
	require.ErrorIs(t, gate.Authorize(t.Context(), invoke(commands.NameSetPrefix, moderator)), commands.ErrPermissionDenied)

	assert.Zero(t, p.Calls(memory.OpKick))
	assert.Zero(t, p.Calls(memory.OpBan))
}

func TestGateCheckFailure(t *testing.T) {
	t.Parallel()

	p := memory.New()
	boom := errors.New("cache miss")
	p.Fail(memory.OpHasCapability, boom)

	def, _ := commands.NewRegistry().Lookup(commands.NameKick)

	err := commands.NewGate(p).Authorize(t.Context(), commands.Invocation{Definition: def, GuildID: guildID})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, commands.ErrPermissionDenied)
}

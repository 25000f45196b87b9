// Package discordapi implements the moderation platform on top of the disgo REST client and caches.
package discordapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/platform"
)

// bulkDeleteMaxAge is the oldest message age the bulk delete endpoint accepts.
const bulkDeleteMaxAge = 14*24*time.Hour - time.Minute

var _ platform.Platform = (*Platform)(nil)

// capabilityPermissions maps capabilities to Discord permission bits.
var capabilityPermissions = map[platform.Capability]discord.Permissions{ //nolint:gochecknoglobals
	platform.CapabilityKickMembers:    discord.PermissionKickMembers,
	platform.CapabilityBanMembers:     discord.PermissionBanMembers,
	platform.CapabilityManageRoles:    discord.PermissionManageRoles,
	platform.CapabilityManageMessages: discord.PermissionManageMessages,
	platform.CapabilityAdministrator:  discord.PermissionAdministrator,
}

// Platform implements platform.Platform against the Discord API.
type Platform struct {
	client bot.Client
}

// New creates a platform bound to a disgo client.
func New(client bot.Client) *Platform {
	return &Platform{client: client}
}

// Channels lists the guild channels, leaving out categories.
func (p *Platform) Channels(ctx context.Context, guildID snowflake.ID) ([]platform.Channel, error) {
	channels, err := p.client.Rest().GetGuildChannels(guildID, rest.WithCtx(ctx))
	if err != nil {
		return nil, mapError("get channels", err)
	}

	out := make([]platform.Channel, 0, len(channels))
	for _, channel := range channels {
		if channel.Type() == discord.ChannelTypeGuildCategory {
			continue
		}

		out = append(out, platform.Channel{
			ID:      channel.ID(),
			GuildID: guildID,
			Name:    channel.Name(),
			Text:    channel.Type() == discord.ChannelTypeGuildText || channel.Type() == discord.ChannelTypeGuildNews,
		})
	}

	return out, nil
}

// Roles lists the guild roles.
func (p *Platform) Roles(ctx context.Context, guildID snowflake.ID) ([]platform.Role, error) {
	roles, err := p.client.Rest().GetRoles(guildID, rest.WithCtx(ctx))
	if err != nil {
		return nil, mapError("get roles", err)
	}

	out := make([]platform.Role, 0, len(roles))
	for _, role := range roles {
		out = append(out, platform.Role{ID: role.ID, GuildID: guildID, Name: role.Name})
	}

	return out, nil
}

// SendMessage posts content and an optional embed to a channel.
func (p *Platform) SendMessage(ctx context.Context, channelID snowflake.ID, msg platform.Message) (snowflake.ID, error) {
	builder := discord.NewMessageCreateBuilder().SetContent(msg.Content)
	if msg.Embed != nil {
		builder.SetEmbeds(buildEmbed(msg.Embed))
	}

	created, err := p.client.Rest().CreateMessage(channelID, builder.Build(), rest.WithCtx(ctx))
	if err != nil {
		return 0, mapError("send message", err)
	}

	return created.ID, nil
}

// DeleteMessage deletes a single message.
func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	if err := p.client.Rest().DeleteMessage(channelID, messageID, rest.WithCtx(ctx)); err != nil {
		return mapError("delete message", err)
	}

	return nil
}

// CreateRole creates a role that grants no permissions.
func (p *Platform) CreateRole(ctx context.Context, guildID snowflake.ID, name string) (platform.Role, error) {
	var none discord.Permissions

	role, err := p.client.Rest().CreateRole(guildID, discord.RoleCreate{
		Name:        name,
		Permissions: &none,
	}, rest.WithCtx(ctx))
	if err != nil {
		return platform.Role{}, mapError("create role", err)
	}

	return platform.Role{ID: role.ID, GuildID: guildID, Name: role.Name}, nil
}

// DenyChannelPermissions sets a role overwrite denying the given permissions on a channel.
func (p *Platform) DenyChannelPermissions(
	ctx context.Context, channelID, roleID snowflake.ID, deny platform.Permission,
) error {
	var denied discord.Permissions
	if deny.Has(platform.PermissionSendMessages) {
		denied |= discord.PermissionSendMessages
	}
	if deny.Has(platform.PermissionSpeak) {
		denied |= discord.PermissionSpeak
	}

	err := p.client.Rest().UpdatePermissionOverwrite(channelID, roleID, discord.RolePermissionOverwriteUpdate{
		Deny: &denied,
	}, rest.WithCtx(ctx))
	if err != nil {
		return mapError("update permission overwrite", err)
	}

	return nil
}

// AddMemberRole assigns a role to a member, recording reason in the audit log.
func (p *Platform) AddMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	if err := p.client.Rest().AddMemberRole(guildID, userID, roleID, requestOpts(ctx, reason)...); err != nil {
		return mapError("add member role", err)
	}

	return nil
}

// RemoveMemberRole removes a role from a member, recording reason in the audit log.
func (p *Platform) RemoveMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	if err := p.client.Rest().RemoveMemberRole(guildID, userID, roleID, requestOpts(ctx, reason)...); err != nil {
		return mapError("remove member role", err)
	}

	return nil
}

// Kick removes a member from the guild.
func (p *Platform) Kick(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	if err := p.client.Rest().RemoveMember(guildID, userID, requestOpts(ctx, reason)...); err != nil {
		return mapError("kick", err)
	}

	return nil
}

// Ban bans a member without deleting their messages.
func (p *Platform) Ban(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	if err := p.client.Rest().AddBan(guildID, userID, 0, requestOpts(ctx, reason)...); err != nil {
		return mapError("ban", err)
	}

	return nil
}

// PurgeMessages bulk deletes recent messages and deletes older ones one by one.
func (p *Platform) PurgeMessages(ctx context.Context, channelID snowflake.ID, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	messages, err := p.client.Rest().GetMessages(channelID, 0, 0, 0, limit, rest.WithCtx(ctx))
	if err != nil {
		return 0, mapError("get messages", err)
	}

	cutoff := time.Now().Add(-bulkDeleteMaxAge)

	var recent, old []snowflake.ID
	for _, msg := range messages {
		if msg.ID.Time().After(cutoff) {
			recent = append(recent, msg.ID)
		} else {
			old = append(old, msg.ID)
		}
	}

	deleted := 0

	switch len(recent) {
	case 0:
	case 1:
		old = append(old, recent[0])
	default:
		if err := p.client.Rest().BulkDeleteMessages(channelID, recent, rest.WithCtx(ctx)); err != nil {
			return 0, mapError("bulk delete messages", err)
		}
		deleted += len(recent)
	}

	for _, id := range old {
		if err := p.client.Rest().DeleteMessage(channelID, id, rest.WithCtx(ctx)); err != nil {
			return deleted, mapError("delete message", err)
		}
		deleted++
	}

	return deleted, nil
}

// HasCapability resolves the member's guild-wide permissions from the cache, falling back to REST.
func (p *Platform) HasCapability(
	ctx context.Context, guildID, userID snowflake.ID, capability platform.Capability,
) (bool, error) {
	if capability == platform.CapabilityNone {
		return true, nil
	}

	required, ok := capabilityPermissions[capability]
	if !ok {
		return false, fmt.Errorf("unknown capability %s", capability)
	}

	member, ok := p.client.Caches().Member(guildID, userID)
	if !ok {
		fetched, err := p.client.Rest().GetMember(guildID, userID, rest.WithCtx(ctx))
		if err != nil {
			return false, mapError("get member", err)
		}
		member = *fetched
	}

	permissions := p.client.Caches().MemberPermissions(member)

	return permissions.Has(discord.PermissionAdministrator) || permissions.Has(required), nil
}

// MemberFrom converts a disgo member into a platform member.
func MemberFrom(member discord.Member) platform.Member {
	return platform.Member{
		ID:       member.User.ID,
		GuildID:  member.GuildID,
		Username: member.User.Username,
		Bot:      member.User.Bot,
		System:   member.User.System,
	}
}

// UserMember converts a disgo user seen in a guild into a platform member.
func UserMember(guildID snowflake.ID, user discord.User) platform.Member {
	return platform.Member{
		ID:       user.ID,
		GuildID:  guildID,
		Username: user.Username,
		Bot:      user.Bot,
		System:   user.System,
	}
}

func buildEmbed(embed *platform.Embed) discord.Embed {
	builder := discord.NewEmbedBuilder().
		SetTitle(embed.Title).
		SetColor(embed.Color)

	for _, field := range embed.Fields {
		builder.AddField(field.Name, field.Value, field.Inline)
	}

	if embed.Footer != "" {
		builder.SetFooterText(embed.Footer)
	}

	if !embed.Timestamp.IsZero() {
		builder.SetTimestamp(embed.Timestamp)
	}

	return builder.Build()
}

func requestOpts(ctx context.Context, reason string) []rest.RequestOpt {
	opts := []rest.RequestOpt{rest.WithCtx(ctx)}
	if reason != "" {
		opts = append(opts, rest.WithReason(reason))
	}

	return opts
}

// mapError turns Discord's refusals into platform rejections and passes everything else through.
func mapError(op string, err error) error {
	var restErr *rest.Error
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	switch restErr.Response.StatusCode {
	case http.StatusForbidden:
		return platform.Reject(op, fmt.Errorf("%w: %w", platform.ErrForbidden, err))
	case http.StatusNotFound:
		return platform.Reject(op, fmt.Errorf("%w: %w", platform.ErrUnknownTarget, err))
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

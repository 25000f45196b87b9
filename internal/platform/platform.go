package platform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

var (
	// ErrUnknownTarget is the cause of a rejection when the member, channel or role is gone.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrForbidden is the cause of a rejection when the bot lacks rank or permission for the call.
	ErrForbidden = errors.New("forbidden by platform")
)

// Capability is a platform-granted authorization checked before a command reaches moderation.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityKickMembers
	CapabilityBanMembers
	CapabilityManageRoles
	CapabilityManageMessages
	CapabilityAdministrator
)

// String returns the capability name as shown to users.
func (c Capability) String() string {
	switch c {
	case CapabilityNone:
		return "none"
	case CapabilityKickMembers:
		return "kick-members"
	case CapabilityBanMembers:
		return "ban-members"
	case CapabilityManageRoles:
		return "manage-roles"
	case CapabilityManageMessages:
		return "manage-messages"
	case CapabilityAdministrator:
		return "administrator"
	default:
		return "Capability(" + strconv.Itoa(int(c)) + ")"
	}
}

// Permission is a channel-level permission bit that can be denied through an overwrite.
type Permission uint8

const (
	PermissionSendMessages Permission = 1 << iota
	PermissionSpeak
)

// Has reports whether all bits in o are set.
func (p Permission) Has(o Permission) bool {
	return p&o == o
}

// Member is a guild member as seen by the moderation pipeline.
type Member struct {
	ID       snowflake.ID
	GuildID  snowflake.ID
	Username string
	Bot      bool
	System   bool
}

// Mention returns the chat mention for the member.
func (m Member) Mention() string {
	return "<@" + m.ID.String() + ">"
}

// Automated reports whether the member is a bot or system account.
func (m Member) Automated() bool {
	return m.Bot || m.System
}

// Channel is a guild channel.
type Channel struct {
	ID      snowflake.ID
	GuildID snowflake.ID
	Name    string
	Text    bool
}

// Role is a guild role.
type Role struct {
	ID      snowflake.ID
	GuildID snowflake.ID
	Name    string
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a structured message card.
type Embed struct {
	Title     string
	Color     int
	Fields    []EmbedField
	Footer    string
	Timestamp time.Time
}

// Message is an outbound message.
type Message struct {
	Content string
	Embed   *Embed
}

// InboundMessage is a message received from the gateway.
type InboundMessage struct {
	ID        snowflake.ID
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Author    Member
	Content   string
}

// Platform is the capability set the moderation pipeline needs from the chat platform.
type Platform interface {
	// Channels lists every channel of a guild.
	Channels(ctx context.Context, guildID snowflake.ID) ([]Channel, error)
	// Roles lists every role of a guild.
	Roles(ctx context.Context, guildID snowflake.ID) ([]Role, error)
	// SendMessage posts a message and returns its id.
	SendMessage(ctx context.Context, channelID snowflake.ID, msg Message) (snowflake.ID, error)
	// DeleteMessage removes a single message.
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error
	// CreateRole creates a role with no permissions.
	CreateRole(ctx context.Context, guildID snowflake.ID, name string) (Role, error)
	// DenyChannelPermissions sets a role overwrite on a channel denying the given permissions.
	DenyChannelPermissions(ctx context.Context, channelID, roleID snowflake.ID, deny Permission) error
	// AddMemberRole assigns a role to a member.
	AddMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error
	// RemoveMemberRole removes a role from a member.
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error
	// Kick removes a member from the guild.
	Kick(ctx context.Context, guildID, userID snowflake.ID, reason string) error
	// Ban bans a member from the guild.
	Ban(ctx context.Context, guildID, userID snowflake.ID, reason string) error
	// PurgeMessages deletes up to limit most recent messages and returns how many were deleted.
	PurgeMessages(ctx context.Context, channelID snowflake.ID, limit int) (int, error)
	// HasCapability reports whether a member holds a capability in a guild.
	HasCapability(ctx context.Context, guildID, userID snowflake.ID, capability Capability) (bool, error)
}

// RejectedError reports that the platform refused an action.
type RejectedError struct {
	Op  string
	Err error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("platform rejected %s: %v", e.Op, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Reject wraps err as a RejectedError for op.
func Reject(op string, err error) error {
	return &RejectedError{Op: op, Err: err}
}

// IsRejected reports whether err is a platform rejection.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

// FindChannel returns the first text channel with the given name.
func FindChannel(channels []Channel, name string) (Channel, bool) {
	for _, channel := range channels {
		if channel.Text && channel.Name == name {
			return channel, true
		}
	}

	return Channel{}, false
}

// FindRole returns the first role with the given name.
func FindRole(roles []Role, name string) (Role, bool) {
	for _, role := range roles {
		if role.Name == name {
			return role, true
		}
	}

	return Role{}, false
}

// Package memory provides a deterministic in-memory platform used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/platform"
)

// Operation names recorded in the call log.
const (
	OpChannels         = "channels"
	OpRoles            = "roles"
	OpSendMessage      = "send_message"
	OpDeleteMessage    = "delete_message"
	OpCreateRole       = "create_role"
	OpDenyPermissions  = "deny_permissions"
	OpAddMemberRole    = "add_member_role"
	OpRemoveMemberRole = "remove_member_role"
	OpKick             = "kick"
	OpBan              = "ban"
	OpPurgeMessages    = "purge_messages"
	OpHasCapability    = "has_capability"
)

var _ platform.Platform = (*Platform)(nil)

// SentMessage is a message posted through the platform.
type SentMessage struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	Message   platform.Message
}

type guild struct {
	channels     []platform.Channel
	roles        []platform.Role
	members      map[snowflake.ID]platform.Member
	memberRoles  map[snowflake.ID][]snowflake.ID
	capabilities map[snowflake.ID][]platform.Capability
	protected    map[snowflake.ID]bool
	bans         map[snowflake.ID]string
}

// Platform implements platform.Platform entirely in memory.
type Platform struct {
	mu         sync.Mutex
	nextID     uint64
	guilds     map[snowflake.ID]*guild
	history    map[snowflake.ID][]snowflake.ID
	sent       []SentMessage
	overwrites map[snowflake.ID]map[snowflake.ID]platform.Permission
	calls      map[string]int
	failures   map[string]error

	// CreateRoleDelay stretches role creation so tests can widen race windows.
	CreateRoleDelay time.Duration
}

// New creates an empty platform.
func New() *Platform {
	return &Platform{
		nextID:     1000,
		guilds:     make(map[snowflake.ID]*guild),
		history:    make(map[snowflake.ID][]snowflake.ID),
		overwrites: make(map[snowflake.ID]map[snowflake.ID]platform.Permission),
		calls:      make(map[string]int),
		failures:   make(map[string]error),
	}
}

func (p *Platform) id() snowflake.ID {
	p.nextID++
	return snowflake.ID(p.nextID)
}

func (p *Platform) guild(guildID snowflake.ID) *guild {
	g, ok := p.guilds[guildID]
	if !ok {
		g = &guild{
			members:      make(map[snowflake.ID]platform.Member),
			memberRoles:  make(map[snowflake.ID][]snowflake.ID),
			capabilities: make(map[snowflake.ID][]platform.Capability),
			protected:    make(map[snowflake.ID]bool),
			bans:         make(map[snowflake.ID]string),
		}
		p.guilds[guildID] = g
	}

	return g
}

// record counts a call and returns any injected failure for it.
func (p *Platform) record(op string) error {
	p.calls[op]++
	return p.failures[op]
}

// AddChannel creates a text channel.
func (p *Platform) AddChannel(guildID snowflake.ID, name string) platform.Channel {
	return p.addChannel(guildID, name, true)
}

// AddVoiceChannel creates a voice channel.
func (p *Platform) AddVoiceChannel(guildID snowflake.ID, name string) platform.Channel {
	return p.addChannel(guildID, name, false)
}

func (p *Platform) addChannel(guildID snowflake.ID, name string, text bool) platform.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()

	channel := platform.Channel{ID: p.id(), GuildID: guildID, Name: name, Text: text}
	g := p.guild(guildID)
	g.channels = append(g.channels, channel)

	return channel
}

// AddRole creates a role directly, bypassing the call log.
func (p *Platform) AddRole(guildID snowflake.ID, name string) platform.Role {
	p.mu.Lock()
	defer p.mu.Unlock()

	role := platform.Role{ID: p.id(), GuildID: guildID, Name: name}
	g := p.guild(guildID)
	g.roles = append(g.roles, role)

	return role
}

// AddMember registers a member with optional capabilities.
func (p *Platform) AddMember(guildID snowflake.ID, username string, capabilities ...platform.Capability) platform.Member {
	p.mu.Lock()
	defer p.mu.Unlock()

	member := platform.Member{ID: p.id(), GuildID: guildID, Username: username}
	g := p.guild(guildID)
	g.members[member.ID] = member
	g.capabilities[member.ID] = capabilities

	return member
}

// Protect makes kick and ban calls against a member fail as if they outrank the bot.
func (p *Platform) Protect(guildID, userID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.guild(guildID).protected[userID] = true
}

// SeedMessages places n existing messages in a channel's history.
func (p *Platform) SeedMessages(channelID snowflake.ID, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for range n {
		p.history[channelID] = append(p.history[channelID], p.id())
	}
}

// Fail makes every future call to op return err. A nil err clears the failure.
func (p *Platform) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		delete(p.failures, op)
		return
	}

	p.failures[op] = err
}

// Calls returns how many times op was invoked.
func (p *Platform) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls[op]
}

// Sent returns every message posted to a channel, including ones deleted since.
func (p *Platform) Sent(channelID snowflake.ID) []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []SentMessage
	for _, msg := range p.sent {
		if msg.ChannelID == channelID {
			out = append(out, msg)
		}
	}

	return out
}

// History returns the ids of messages currently present in a channel, oldest first.
func (p *Platform) History(channelID snowflake.ID) []snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.history[channelID])
}

// MemberRoles returns the roles currently assigned to a member.
func (p *Platform) MemberRoles(guildID, userID snowflake.ID) []snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.guild(guildID).memberRoles[userID])
}

// Overwrite returns the permissions denied to a role on a channel.
func (p *Platform) Overwrite(channelID, roleID snowflake.ID) (platform.Permission, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	deny, ok := p.overwrites[channelID][roleID]

	return deny, ok
}

// IsMember reports whether the user is still in the guild.
func (p *Platform) IsMember(guildID, userID snowflake.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.guild(guildID).members[userID]

	return ok
}

// IsBanned reports whether the user was banned.
func (p *Platform) IsBanned(guildID, userID snowflake.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.guild(guildID).bans[userID]

	return ok
}

func (p *Platform) Channels(_ context.Context, guildID snowflake.ID) ([]platform.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpChannels); err != nil {
		return nil, err
	}

	return slices.Clone(p.guild(guildID).channels), nil
}

func (p *Platform) Roles(_ context.Context, guildID snowflake.ID) ([]platform.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpRoles); err != nil {
		return nil, err
	}

	return slices.Clone(p.guild(guildID).roles), nil
}

func (p *Platform) SendMessage(_ context.Context, channelID snowflake.ID, msg platform.Message) (snowflake.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpSendMessage); err != nil {
		return 0, err
	}

	id := p.id()
	p.sent = append(p.sent, SentMessage{ID: id, ChannelID: channelID, Message: msg})
	p.history[channelID] = append(p.history[channelID], id)

	return id, nil
}

func (p *Platform) DeleteMessage(_ context.Context, channelID, messageID snowflake.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpDeleteMessage); err != nil {
		return err
	}

	history := p.history[channelID]

	idx := slices.Index(history, messageID)
	if idx < 0 {
		return platform.Reject(OpDeleteMessage, platform.ErrUnknownTarget)
	}

	p.history[channelID] = slices.Delete(history, idx, idx+1)

	return nil
}

func (p *Platform) CreateRole(ctx context.Context, guildID snowflake.ID, name string) (platform.Role, error) {
	if p.CreateRoleDelay > 0 {
		select {
		case <-time.After(p.CreateRoleDelay):
		case <-ctx.Done():
			return platform.Role{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpCreateRole); err != nil {
		return platform.Role{}, err
	}

	role := platform.Role{ID: p.id(), GuildID: guildID, Name: name}
	g := p.guild(guildID)
	g.roles = append(g.roles, role)

	return role, nil
}

func (p *Platform) DenyChannelPermissions(_ context.Context, channelID, roleID snowflake.ID, deny platform.Permission) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpDenyPermissions); err != nil {
		return err
	}

	if p.overwrites[channelID] == nil {
		p.overwrites[channelID] = make(map[snowflake.ID]platform.Permission)
	}

	p.overwrites[channelID][roleID] = deny

	return nil
}

func (p *Platform) AddMemberRole(_ context.Context, guildID, userID, roleID snowflake.ID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpAddMemberRole); err != nil {
		return err
	}

	g := p.guild(guildID)
	if _, ok := g.members[userID]; !ok {
		return platform.Reject(OpAddMemberRole, platform.ErrUnknownTarget)
	}

	if !slices.Contains(g.memberRoles[userID], roleID) {
		g.memberRoles[userID] = append(g.memberRoles[userID], roleID)
	}

	return nil
}

func (p *Platform) RemoveMemberRole(_ context.Context, guildID, userID, roleID snowflake.ID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpRemoveMemberRole); err != nil {
		return err
	}

	g := p.guild(guildID)
	if _, ok := g.members[userID]; !ok {
		return platform.Reject(OpRemoveMemberRole, platform.ErrUnknownTarget)
	}

	g.memberRoles[userID] = slices.DeleteFunc(g.memberRoles[userID], func(id snowflake.ID) bool {
		return id == roleID
	})

	return nil
}

func (p *Platform) Kick(_ context.Context, guildID, userID snowflake.ID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpKick); err != nil {
		return err
	}

	return p.removeMember(OpKick, guildID, userID)
}

func (p *Platform) Ban(_ context.Context, guildID, userID snowflake.ID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpBan); err != nil {
		return err
	}

	if err := p.removeMember(OpBan, guildID, userID); err != nil {
		return err
	}

	p.guild(guildID).bans[userID] = reason

	return nil
}

func (p *Platform) removeMember(op string, guildID, userID snowflake.ID) error {
	g := p.guild(guildID)
	if _, ok := g.members[userID]; !ok {
		return platform.Reject(op, platform.ErrUnknownTarget)
	}

	if g.protected[userID] {
		return platform.Reject(op, platform.ErrForbidden)
	}

	delete(g.members, userID)
	delete(g.memberRoles, userID)

	return nil
}

func (p *Platform) PurgeMessages(_ context.Context, channelID snowflake.ID, limit int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpPurgeMessages); err != nil {
		return 0, err
	}

	if limit < 0 {
		return 0, fmt.Errorf("invalid purge limit %d", limit)
	}

	history := p.history[channelID]
	n := min(limit, len(history))
	p.history[channelID] = history[:len(history)-n]

	return n, nil
}

func (p *Platform) HasCapability(
	_ context.Context, guildID, userID snowflake.ID, capability platform.Capability,
) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record(OpHasCapability); err != nil {
		return false, err
	}

	if capability == platform.CapabilityNone {
		return true, nil
	}

	held := p.guild(guildID).capabilities[userID]

	return slices.Contains(held, capability) || slices.Contains(held, platform.CapabilityAdministrator), nil
}

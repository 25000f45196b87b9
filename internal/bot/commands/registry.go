package commands

import (
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/settings"
)

// Command names.
const (
	NameKick        = "kick"
	NameBan         = "ban"
	NameMute        = "mute"
	NameUnmute      = "unmute"
	NameClear       = "clear"
	NameSetWelcome  = "setwelcome"
	NameSetModLog   = "setmodlog"
	NameSetAutoRole = "setautorole"
	NameSetPrefix   = "setprefix"
	NameHelp        = "help"
)

// Definition describes a command and the capability required to run it.
type Definition struct {
	Name        string
	Usage       string
	Description string
	Capability  platform.Capability
	// Field is the settings field a set command writes, if any.
	Field *settings.Field
}

// Registry is the fixed command table.
type Registry struct {
	defs  []Definition
	index map[string]int
}

// NewRegistry creates the registry of all moderation commands.
func NewRegistry() *Registry {
	field := func(f settings.Field) *settings.Field { return &f }

	defs := []Definition{
		{
			Name: NameKick, Usage: "kick <@member> [reason]",
			Description: "Kick a member", Capability: platform.CapabilityKickMembers,
		},
		{
			Name: NameBan, Usage: "ban <@member> [reason]",
			Description: "Ban a member", Capability: platform.CapabilityBanMembers,
		},
		{
			Name: NameMute, Usage: "mute <@member>",
			Description: "Mute a member", Capability: platform.CapabilityManageRoles,
		},
		{
			Name: NameUnmute, Usage: "unmute <@member>",
			Description: "Unmute a member", Capability: platform.CapabilityManageRoles,
		},
		{
			Name: NameClear, Usage: "clear <amount>",
			Description: "Delete recent messages", Capability: platform.CapabilityManageMessages,
		},
		{
			Name: NameSetWelcome, Usage: "setwelcome <channel>",
			Description: "Set the welcome channel", Capability: platform.CapabilityAdministrator,
			Field: field(settings.FieldWelcome),
		},
		{
			Name: NameSetModLog, Usage: "setmodlog <channel>",
			Description: "Set the mod-log channel", Capability: platform.CapabilityAdministrator,
			Field: field(settings.FieldModLog),
		},
		{
			Name: NameSetAutoRole, Usage: "setautorole <role|none>",
			Description: "Set the role given to new members", Capability: platform.CapabilityAdministrator,
			Field: field(settings.FieldAutoRole),
		},
		{
			Name: NameSetPrefix, Usage: "setprefix <prefix>",
			Description: "Set the command prefix", Capability: platform.CapabilityAdministrator,
			Field: field(settings.FieldPrefix),
		},
		{
			Name: NameHelp, Usage: "help",
			Description: "List commands", Capability: platform.CapabilityNone,
		},
	}

	index := make(map[string]int, len(defs))
	for i, def := range defs {
		index[def.Name] = i
	}

	return &Registry{defs: defs, index: index}
}

// Lookup returns the definition for a normalized command name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, false
	}

	return r.defs[i], true
}

// All returns every definition in display order.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)

	return out
}

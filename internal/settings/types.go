package settings

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/storage"
)

// Defaults applied to a guild the first time it is seen.
const (
	DefaultWelcomeChannel = "general"
	DefaultModLogChannel  = "mod-log"
	DefaultPrefix         = "!"
)

// Field names a settable guild setting.
//
//go:generate go tool enumer -type=Field -trimprefix=Field -transform=lower
type Field int

const (
	// FieldWelcome is the channel name new members are greeted in.
	FieldWelcome Field = iota
	// FieldModLog is the channel name audit records are written to.
	FieldModLog
	// FieldAutoRole is the role name assigned to new members.
	FieldAutoRole
	// FieldPrefix is the command prefix.
	FieldPrefix
)

// GuildSettings is the per-guild configuration.
type GuildSettings struct {
	GuildID        snowflake.ID
	WelcomeChannel string
	ModLogChannel  string
	AutoRole       string // empty when no role is assigned on join
	Prefix         string
}

// HasAutoRole reports whether an auto role is configured.
func (s GuildSettings) HasAutoRole() bool {
	return s.AutoRole != ""
}

// Defaults returns the settings a new guild starts with.
func Defaults(guildID snowflake.ID, prefix string) GuildSettings {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return GuildSettings{
		GuildID:        guildID,
		WelcomeChannel: DefaultWelcomeChannel,
		ModLogChannel:  DefaultModLogChannel,
		Prefix:         prefix,
	}
}

// toRecord converts settings to their persisted form.
func (s GuildSettings) toRecord() storage.Record {
	record := storage.Record{
		WelcomeChannel: s.WelcomeChannel,
		ModLogChannel:  s.ModLogChannel,
		Prefix:         s.Prefix,
	}

	if s.AutoRole != "" {
		role := s.AutoRole
		record.AutoRole = &role
	}

	return record
}

// fromRecord converts a persisted record back into settings.
func fromRecord(guildID snowflake.ID, record storage.Record) GuildSettings {
	s := GuildSettings{
		GuildID:        guildID,
		WelcomeChannel: record.WelcomeChannel,
		ModLogChannel:  record.ModLogChannel,
		Prefix:         record.Prefix,
	}

	if record.AutoRole != nil {
		s.AutoRole = *record.AutoRole
	}

	return s
}

// fillMissing copies every empty required field from defaults and returns the names of the filled fields.
func (s *GuildSettings) fillMissing(defaults GuildSettings) []string {
	var filled []string

	if s.WelcomeChannel == "" {
		s.WelcomeChannel = defaults.WelcomeChannel
		filled = append(filled, FieldWelcome.String())
	}

	if s.ModLogChannel == "" {
		s.ModLogChannel = defaults.ModLogChannel
		filled = append(filled, FieldModLog.String())
	}

	if s.Prefix == "" {
		s.Prefix = defaults.Prefix
		filled = append(filled, FieldPrefix.String())
	}

	return filled
}

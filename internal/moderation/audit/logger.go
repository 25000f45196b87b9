package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/settings"
	"go.uber.org/zap"
)

// SettingsSource resolves a guild's settings.
type SettingsSource interface {
	Get(ctx context.Context, guildID snowflake.ID) (settings.GuildSettings, error)
}

// Entry describes one completed moderation action.
type Entry struct {
	ID        uuid.UUID
	Kind      Kind
	Target    platform.Member
	Actor     platform.Member
	Reason    string
	Timestamp time.Time
	Automatic bool
}

// NewEntry creates an entry stamped with a fresh case id and the current time.
func NewEntry(kind Kind, target, actor platform.Member, reason string) Entry {
	return Entry{
		ID:        uuid.New(),
		Kind:      kind,
		Target:    target,
		Actor:     actor,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// Embed renders the entry as an audit record.
func (e Entry) Embed() *platform.Embed {
	fields := []platform.EmbedField{
		{Name: "Target", Value: describe(e.Target), Inline: true},
		{Name: "Moderator", Value: describe(e.Actor), Inline: true},
	}

	if e.Reason != "" {
		fields = append(fields, platform.EmbedField{Name: "Reason", Value: e.Reason})
	}

	footer := "Case " + e.ID.String()
	if e.Automatic {
		footer += " • automatic"
	}

	return &platform.Embed{
		Title:     e.Kind.Title(),
		Color:     e.Kind.Color(),
		Fields:    fields,
		Footer:    footer,
		Timestamp: e.Timestamp,
	}
}

func describe(m platform.Member) string {
	if m.Username == "" {
		return m.Mention()
	}

	return fmt.Sprintf("%s (%s)", m.Mention(), m.Username)
}

// Logger writes audit records to each guild's configured mod-log channel.
type Logger struct {
	platform platform.Platform
	settings SettingsSource
	logger   *zap.Logger
}

// NewLogger creates an audit logger.
func NewLogger(p platform.Platform, source SettingsSource, logger *zap.Logger) *Logger {
	return &Logger{
		platform: p,
		settings: source,
		logger:   logger.Named("audit"),
	}
}

// Log writes the entry to the guild's mod-log channel. It returns false without error
// when the channel does not resolve.
func (l *Logger) Log(ctx context.Context, guildID snowflake.ID, entry Entry) (bool, error) {
	guildSettings, err := l.settings.Get(ctx, guildID)
	if err != nil && !errors.Is(err, settings.ErrPersistFailed) {
		return false, fmt.Errorf("failed to get settings: %w", err)
	}

	channels, err := l.platform.Channels(ctx, guildID)
	if err != nil {
		return false, fmt.Errorf("failed to list channels: %w", err)
	}

	channel, ok := platform.FindChannel(channels, guildSettings.ModLogChannel)
	if !ok {
		l.logger.Debug("Mod-log channel not found, skipping audit record",
			zap.Uint64("guildID", uint64(guildID)),
			zap.String("channel", guildSettings.ModLogChannel),
			zap.String("kind", entry.Kind.String()))

		return false, nil
	}

	if _, err := l.platform.SendMessage(ctx, channel.ID, platform.Message{Embed: entry.Embed()}); err != nil {
		return false, fmt.Errorf("failed to send audit record: %w", err)
	}

	l.logger.Info("Wrote audit record",
		zap.Uint64("guildID", uint64(guildID)),
		zap.String("case", entry.ID.String()),
		zap.String("kind", entry.Kind.String()),
		zap.Uint64("targetID", uint64(entry.Target.ID)),
		zap.Uint64("actorID", uint64(entry.Actor.ID)),
		zap.Bool("automatic", entry.Automatic))

	return true, nil
}

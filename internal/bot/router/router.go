package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/bot/commands"
	"github.com/robalyx/warden/internal/moderation/action"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/settings"
	"go.uber.org/zap"
)

// Notices sent by the router.
const (
	NoticePermissionDenied = "❌ You do not have permission to use this command!"
	NoticePersistFailed    = "❌ Failed to save the configuration!"
	NoticeInvalidAmount    = "❌ Amount must be between 1 and 100!"
)

// SettingsStore reads and writes guild settings.
type SettingsStore interface {
	Get(ctx context.Context, guildID snowflake.ID) (settings.GuildSettings, error)
	Set(ctx context.Context, guildID snowflake.ID, field settings.Field, value string) (settings.GuildSettings, error)
}

// SpamDetector counts messages per guild member.
type SpamDetector interface {
	Observe(guildID, authorID snowflake.ID) bool
}

// Dispatcher executes moderation actions.
type Dispatcher interface {
	Kick(ctx context.Context, req action.Request, target platform.Member, reason string) (action.Result, error)
	Ban(ctx context.Context, req action.Request, target platform.Member, reason string) (action.Result, error)
	Mute(ctx context.Context, req action.Request, target platform.Member) (action.Result, error)
	Unmute(ctx context.Context, req action.Request, target platform.Member) (action.Result, error)
	AutoMute(ctx context.Context, guildID, channelID snowflake.ID, target platform.Member) (action.Result, error)
	Clear(ctx context.Context, req action.Request, amount int) (action.Result, error)
}

// Dependencies are the collaborators a Router routes events to.
type Dependencies struct {
	Platform   platform.Platform
	Settings   SettingsStore
	Detector   SpamDetector
	Dispatcher Dispatcher
	Registry   *commands.Registry
}

// Router turns gateway events into moderation work.
type Router struct {
	platform   platform.Platform
	settings   SettingsStore
	detector   SpamDetector
	dispatcher Dispatcher
	registry   *commands.Registry
	parser     *commands.Parser
	gate       *commands.Gate
	logger     *zap.Logger
}

// New creates a router.
func New(deps Dependencies, logger *zap.Logger) *Router {
	registry := deps.Registry
	if registry == nil {
		registry = commands.NewRegistry()
	}

	return &Router{
		platform:   deps.Platform,
		settings:   deps.Settings,
		detector:   deps.Detector,
		dispatcher: deps.Dispatcher,
		registry:   registry,
		parser:     commands.NewParser(registry),
		gate:       commands.NewGate(deps.Platform),
		logger:     logger.Named("router"),
	}
}

// OnMemberJoin greets a new member and assigns the configured auto role.
// The two steps run independently of each other.
func (r *Router) OnMemberJoin(ctx context.Context, member platform.Member) {
	guildSettings, err := r.guildSettings(ctx, member.GuildID)
	if err != nil {
		r.logger.Error("Failed to get settings for join",
			zap.Uint64("guildID", uint64(member.GuildID)),
			zap.Error(err))
		return
	}

	if err := r.welcome(ctx, member, guildSettings.WelcomeChannel); err != nil {
		r.logger.Error("Failed to welcome member",
			zap.Uint64("guildID", uint64(member.GuildID)),
			zap.Uint64("userID", uint64(member.ID)),
			zap.Error(err))
	}

	if !guildSettings.HasAutoRole() {
		return
	}

	if err := r.assignAutoRole(ctx, member, guildSettings.AutoRole); err != nil {
		r.logger.Error("Failed to assign auto role",
			zap.Uint64("guildID", uint64(member.GuildID)),
			zap.Uint64("userID", uint64(member.ID)),
			zap.String("role", guildSettings.AutoRole),
			zap.Error(err))
	}
}

func (r *Router) welcome(ctx context.Context, member platform.Member, channelName string) error {
	channels, err := r.platform.Channels(ctx, member.GuildID)
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	channel, ok := platform.FindChannel(channels, channelName)
	if !ok {
		r.logger.Debug("Welcome channel not found",
			zap.Uint64("guildID", uint64(member.GuildID)),
			zap.String("channel", channelName))
		return nil
	}

	content := fmt.Sprintf("👋 Welcome %s to the server!", member.Mention())
	if _, err := r.platform.SendMessage(ctx, channel.ID, platform.Message{Content: content}); err != nil {
		return fmt.Errorf("failed to send welcome: %w", err)
	}

	return nil
}

func (r *Router) assignAutoRole(ctx context.Context, member platform.Member, roleName string) error {
	roles, err := r.platform.Roles(ctx, member.GuildID)
	if err != nil {
		return fmt.Errorf("failed to list roles: %w", err)
	}

	role, ok := platform.FindRole(roles, roleName)
	if !ok {
		r.logger.Debug("Auto role not found",
			zap.Uint64("guildID", uint64(member.GuildID)),
			zap.String("role", roleName))
		return nil
	}

	if err := r.platform.AddMemberRole(ctx, member.GuildID, member.ID, role.ID, "Auto role"); err != nil {
		if platform.IsRejected(err) {
			r.logger.Debug("Auto role rejected by platform",
				zap.Uint64("guildID", uint64(member.GuildID)),
				zap.Error(err))
			return nil
		}

		return fmt.Errorf("failed to add role: %w", err)
	}

	return nil
}

// OnMessage feeds a guild message to the spam detector and routes prefixed commands.
func (r *Router) OnMessage(ctx context.Context, msg platform.InboundMessage) {
	if msg.Author.Automated() || msg.GuildID == 0 {
		return
	}

	if r.detector.Observe(msg.GuildID, msg.Author.ID) {
		r.logger.Info("Spam threshold exceeded",
			zap.Uint64("guildID", uint64(msg.GuildID)),
			zap.Uint64("userID", uint64(msg.Author.ID)))

		if _, err := r.dispatcher.AutoMute(ctx, msg.GuildID, msg.ChannelID, msg.Author); err != nil {
			r.logger.Error("Failed to mute spammer",
				zap.Uint64("guildID", uint64(msg.GuildID)),
				zap.Uint64("userID", uint64(msg.Author.ID)),
				zap.Error(err))
		}
	}

	guildSettings, err := r.guildSettings(ctx, msg.GuildID)
	if err != nil {
		r.logger.Error("Failed to get settings for message",
			zap.Uint64("guildID", uint64(msg.GuildID)),
			zap.Error(err))
		return
	}

	inv, isCommand, err := r.parser.Parse(msg, guildSettings.Prefix)
	if !isCommand {
		return
	}

	if err != nil {
		r.logger.Debug("Ignoring unknown command",
			zap.Uint64("guildID", uint64(msg.GuildID)),
			zap.Error(err))
		return
	}

	r.OnCommand(ctx, inv)
}

// OnCommand authorizes a parsed command and executes it.
func (r *Router) OnCommand(ctx context.Context, inv commands.Invocation) {
	logger := r.logger.With(
		zap.String("command", inv.Definition.Name),
		zap.Uint64("guildID", uint64(inv.GuildID)),
		zap.Uint64("userID", uint64(inv.Author.ID)))

	if err := r.gate.Authorize(ctx, inv); err != nil {
		if errors.Is(err, commands.ErrPermissionDenied) {
			logger.Debug("Command denied", zap.Error(err))
			r.reply(ctx, inv, NoticePermissionDenied)
			return
		}

		logger.Error("Failed to authorize command", zap.Error(err))
		return
	}

	if inv.Definition.Field != nil {
		r.setField(ctx, inv, *inv.Definition.Field, logger)
		return
	}

	req := action.Request{GuildID: inv.GuildID, ChannelID: inv.ChannelID, Actor: inv.Author}

	var err error

	switch inv.Definition.Name {
	case commands.NameKick, commands.NameBan, commands.NameMute, commands.NameUnmute:
		err = r.moderate(ctx, inv, req)
	case commands.NameClear:
		err = r.clear(ctx, inv, req)
	case commands.NameHelp:
		r.reply(ctx, inv, r.help(inv.Prefix))
	default:
		logger.Warn("Command has no handler")
	}

	if err != nil {
		logger.Error("Command failed", zap.Error(err))
	}
}

func (r *Router) moderate(ctx context.Context, inv commands.Invocation, req action.Request) error {
	arg, err := inv.Arg(0)
	if err != nil {
		r.reply(ctx, inv, "❌ Usage: "+inv.Usage())
		return nil
	}

	targetID, err := commands.ParseTarget(arg)
	if err != nil {
		r.reply(ctx, inv, "❌ Usage: "+inv.Usage())
		return nil
	}

	target := platform.Member{ID: targetID, GuildID: inv.GuildID}

	switch inv.Definition.Name {
	case commands.NameKick:
		_, err = r.dispatcher.Kick(ctx, req, target, inv.Rest)
	case commands.NameBan:
		_, err = r.dispatcher.Ban(ctx, req, target, inv.Rest)
	case commands.NameMute:
		_, err = r.dispatcher.Mute(ctx, req, target)
	case commands.NameUnmute:
		_, err = r.dispatcher.Unmute(ctx, req, target)
	}

	return err
}

func (r *Router) clear(ctx context.Context, inv commands.Invocation, req action.Request) error {
	arg, err := inv.Arg(0)
	if err != nil {
		r.reply(ctx, inv, "❌ Usage: "+inv.Usage())
		return nil
	}

	amount, err := commands.ParseAmount(arg)
	if err != nil {
		r.reply(ctx, inv, NoticeInvalidAmount)
		return nil
	}

	_, err = r.dispatcher.Clear(ctx, req, amount)

	return err
}

func (r *Router) setField(ctx context.Context, inv commands.Invocation, field settings.Field, logger *zap.Logger) {
	if inv.Text == "" {
		r.reply(ctx, inv, "❌ Usage: "+inv.Usage())
		return
	}

	_, err := r.settings.Set(ctx, inv.GuildID, field, inv.Text)
	switch {
	case err == nil:
		r.reply(ctx, inv, fmt.Sprintf("✅ %s set to %s", field, inv.Text))
	case errors.Is(err, settings.ErrPersistFailed):
		logger.Error("Failed to persist setting", zap.Error(err))
		r.reply(ctx, inv, NoticePersistFailed)
	case errors.Is(err, settings.ErrInvalidValue):
		r.reply(ctx, inv, fmt.Sprintf("❌ Invalid value for %s!", field))
	default:
		logger.Error("Failed to update setting", zap.Error(err))
		r.reply(ctx, inv, NoticePersistFailed)
	}
}

func (r *Router) help(prefix string) string {
	var b strings.Builder
	b.WriteString("📖 **Commands**")

	for _, def := range r.registry.All() {
		fmt.Fprintf(&b, "\n`%s%s` %s", prefix, def.Usage, def.Description)
		if def.Capability != platform.CapabilityNone {
			fmt.Fprintf(&b, " (requires %s)", def.Capability)
		}
	}

	return b.String()
}

// guildSettings returns the guild's settings. A failed persist of fresh defaults still yields usable settings.
func (r *Router) guildSettings(ctx context.Context, guildID snowflake.ID) (settings.GuildSettings, error) {
	guildSettings, err := r.settings.Get(ctx, guildID)
	if err != nil {
		if errors.Is(err, settings.ErrPersistFailed) {
			r.logger.Warn("Using unsaved default settings",
				zap.Uint64("guildID", uint64(guildID)),
				zap.Error(err))
			return guildSettings, nil
		}

		return settings.GuildSettings{}, err
	}

	return guildSettings, nil
}

func (r *Router) reply(ctx context.Context, inv commands.Invocation, content string) {
	if _, err := r.platform.SendMessage(ctx, inv.ChannelID, platform.Message{Content: content}); err != nil {
		r.logger.Warn("Failed to send reply",
			zap.Uint64("channelID", uint64(inv.ChannelID)),
			zap.Error(err))
	}
}

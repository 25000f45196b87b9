package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/moderation/audit"
	"github.com/robalyx/warden/internal/moderation/muterole"
	"github.com/robalyx/warden/internal/platform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// MinClearAmount and MaxClearAmount bound a single clear.
	MinClearAmount = 1
	MaxClearAmount = 100

	// DefaultNoticeTTL is how long a clear notice stays in the channel.
	DefaultNoticeTTL = 3 * time.Second

	// AutoMuteReason is recorded for mutes issued by the spam detector.
	AutoMuteReason = "Automatic mute: message spam"
)

// Outcome is how a dispatched action ended.
type Outcome int

const (
	// OutcomeSuccess means the platform applied the action.
	OutcomeSuccess Outcome = iota
	// OutcomeRejected means the platform refused the action.
	OutcomeRejected
	// OutcomeFailed means the action failed for another reason and the error is returned.
	OutcomeFailed
	// OutcomeSkipped means there was nothing to do.
	OutcomeSkipped
)

// Request identifies where an action was invoked and by whom.
type Request struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Actor     platform.Member
}

// Result describes a dispatched action.
type Result struct {
	Outcome Outcome
	// Deleted is the number of messages removed by a clear.
	Deleted int
	// Audited reports whether an audit record was written.
	Audited bool
}

// RoleProvisioner resolves the guild mute role.
type RoleProvisioner interface {
	Ensure(ctx context.Context, guildID snowflake.ID) (platform.Role, error)
	Lookup(ctx context.Context, guildID snowflake.ID) (platform.Role, bool, error)
}

// Auditor records completed actions.
type Auditor interface {
	Log(ctx context.Context, guildID snowflake.ID, entry audit.Entry) (bool, error)
}

// Options configures a Dispatcher.
type Options struct {
	// Self is the bot's own member, used as the actor of automatic mutes.
	Self platform.Member
	// NoticeTTL is how long clear notices live. Zero means DefaultNoticeTTL.
	NoticeTTL time.Duration
}

// Dispatcher turns approved commands into platform effects, notices and audit records.
type Dispatcher struct {
	platform  platform.Platform
	roles     RoleProvisioner
	auditor   Auditor
	logger    *zap.Logger
	tracer    trace.Tracer
	self      platform.Member
	noticeTTL time.Duration
	pending   sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	p platform.Platform, roles RoleProvisioner, auditor Auditor, opts Options, logger *zap.Logger,
) *Dispatcher {
	ttl := opts.NoticeTTL
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}

	return &Dispatcher{
		platform:  p,
		roles:     roles,
		auditor:   auditor,
		logger:    logger.Named("dispatcher"),
		tracer:    otel.Tracer("action"),
		self:      opts.Self,
		noticeTTL: ttl,
	}
}

// Kick removes the target from the guild.
func (d *Dispatcher) Kick(ctx context.Context, req Request, target platform.Member, reason string) (Result, error) {
	return d.remove(ctx, req, target, reason, audit.KindKick)
}

// Ban bans the target from the guild.
func (d *Dispatcher) Ban(ctx context.Context, req Request, target platform.Member, reason string) (Result, error) {
	return d.remove(ctx, req, target, reason, audit.KindBan)
}

func (d *Dispatcher) remove(
	ctx context.Context, req Request, target platform.Member, reason string, kind audit.Kind,
) (result Result, err error) {
	ctx, span := d.start(ctx, kind.String(), req, target)
	defer func() { endSpan(span, result, err) }()

	verb, past := "kick", "kicked"
	apply := d.platform.Kick
	if kind == audit.KindBan {
		verb, past = "ban", "banned"
		apply = d.platform.Ban
	}

	if err := apply(ctx, req.GuildID, target.ID, reason); err != nil {
		d.notify(ctx, req.ChannelID, fmt.Sprintf("❌ I cannot %s this member!", verb))
		return d.classify(err, kind, req, target)
	}

	d.notify(ctx, req.ChannelID, fmt.Sprintf("✅ %s has been %s!", target.Mention(), past))

	return Result{Outcome: OutcomeSuccess, Audited: d.audit(ctx, req.GuildID, audit.NewEntry(kind, target, req.Actor, reason))}, nil
}

// Mute assigns the guild mute role to the target, provisioning it if needed.
func (d *Dispatcher) Mute(ctx context.Context, req Request, target platform.Member) (result Result, err error) {
	ctx, span := d.start(ctx, audit.KindMute.String(), req, target)
	defer func() { endSpan(span, result, err) }()

	entry := audit.NewEntry(audit.KindMute, target, req.Actor, "")

	return d.mute(ctx, req, target, entry, fmt.Sprintf("🔇 %s has been muted!", target.Mention()))
}

// AutoMute mutes a member whose messages tripped the spam detector.
func (d *Dispatcher) AutoMute(
	ctx context.Context, guildID, channelID snowflake.ID, target platform.Member,
) (result Result, err error) {
	req := Request{GuildID: guildID, ChannelID: channelID, Actor: d.self}

	ctx, span := d.start(ctx, "automute", req, target)
	defer func() { endSpan(span, result, err) }()

	entry := audit.NewEntry(audit.KindMute, target, d.self, AutoMuteReason)
	entry.Automatic = true

	return d.mute(ctx, req, target, entry, fmt.Sprintf("🔇 %s has been muted for spamming!", target.Mention()))
}

func (d *Dispatcher) mute(
	ctx context.Context, req Request, target platform.Member, entry audit.Entry, notice string,
) (Result, error) {
	role, err := d.roles.Ensure(ctx, req.GuildID)
	switch {
	case err == nil:
	case role.ID != 0 && errors.Is(err, muterole.ErrOverwriteFailed):
		// The role exists even though some channels were not covered
		d.logger.Warn("Mute role provisioned with missing overwrites",
			zap.Uint64("guildID", uint64(req.GuildID)),
			zap.Error(err))
	default:
		d.notify(ctx, req.ChannelID, "❌ I cannot mute this member!")
		return d.classify(err, audit.KindMute, req, target)
	}

	if err := d.platform.AddMemberRole(ctx, req.GuildID, target.ID, role.ID, entry.Reason); err != nil {
		d.notify(ctx, req.ChannelID, "❌ I cannot mute this member!")
		return d.classify(err, audit.KindMute, req, target)
	}

	d.notify(ctx, req.ChannelID, notice)

	return Result{Outcome: OutcomeSuccess, Audited: d.audit(ctx, req.GuildID, entry)}, nil
}

// Unmute removes the guild mute role from the target.
func (d *Dispatcher) Unmute(ctx context.Context, req Request, target platform.Member) (result Result, err error) {
	ctx, span := d.start(ctx, audit.KindUnmute.String(), req, target)
	defer func() { endSpan(span, result, err) }()

	role, ok, err := d.roles.Lookup(ctx, req.GuildID)
	if err != nil {
		d.notify(ctx, req.ChannelID, "❌ I cannot unmute this member!")
		return d.classify(err, audit.KindUnmute, req, target)
	}

	if !ok {
		d.notify(ctx, req.ChannelID, "❌ Muted role does not exist!")
		return Result{Outcome: OutcomeSkipped}, nil
	}

	if err := d.platform.RemoveMemberRole(ctx, req.GuildID, target.ID, role.ID, ""); err != nil {
		d.notify(ctx, req.ChannelID, "❌ I cannot unmute this member!")
		return d.classify(err, audit.KindUnmute, req, target)
	}

	d.notify(ctx, req.ChannelID, fmt.Sprintf("🔊 %s has been unmuted!", target.Mention()))

	entry := audit.NewEntry(audit.KindUnmute, target, req.Actor, "")

	return Result{Outcome: OutcomeSuccess, Audited: d.audit(ctx, req.GuildID, entry)}, nil
}

// Clear deletes up to amount recent messages from the request channel.
// The notice it posts removes itself after the configured TTL.
func (d *Dispatcher) Clear(ctx context.Context, req Request, amount int) (result Result, err error) {
	ctx, span := d.tracer.Start(ctx, "action.clear", trace.WithAttributes(
		attribute.Int64("guild.id", int64(req.GuildID)),
		attribute.Int64("channel.id", int64(req.ChannelID)),
		attribute.Int("amount", amount),
	))
	defer func() { endSpan(span, result, err) }()

	if amount < MinClearAmount || amount > MaxClearAmount {
		d.notify(ctx, req.ChannelID, fmt.Sprintf("❌ Amount must be between %d and %d!", MinClearAmount, MaxClearAmount))
		return Result{Outcome: OutcomeSkipped}, nil
	}

	deleted, err := d.platform.PurgeMessages(ctx, req.ChannelID, amount)
	if err != nil {
		d.notify(ctx, req.ChannelID, "❌ I cannot clear messages here!")

		if platform.IsRejected(err) {
			d.logger.Debug("Clear rejected by platform",
				zap.Uint64("channelID", uint64(req.ChannelID)),
				zap.Error(err))
			return Result{Outcome: OutcomeRejected}, nil
		}

		return Result{Outcome: OutcomeFailed}, fmt.Errorf("failed to purge messages: %w", err)
	}

	noticeID := d.notify(ctx, req.ChannelID, fmt.Sprintf("🧹 Cleared %d messages!", deleted))
	if noticeID != 0 {
		d.expire(ctx, req.ChannelID, noticeID)
	}

	d.logger.Info("Cleared messages",
		zap.Uint64("guildID", uint64(req.GuildID)),
		zap.Uint64("channelID", uint64(req.ChannelID)),
		zap.Uint64("actorID", uint64(req.Actor.ID)),
		zap.Int("requested", amount),
		zap.Int("deleted", deleted))

	return Result{Outcome: OutcomeSuccess, Deleted: deleted}, nil
}

// Wait blocks until every scheduled notice deletion has run.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// expire deletes a notice once the TTL elapses. The deletion outlives the request context.
func (d *Dispatcher) expire(ctx context.Context, channelID, messageID snowflake.ID) {
	ctx = context.WithoutCancel(ctx)

	d.pending.Add(1)
	time.AfterFunc(d.noticeTTL, func() {
		defer d.pending.Done()

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := d.platform.DeleteMessage(ctx, channelID, messageID); err != nil {
			d.logger.Debug("Failed to delete expired notice",
				zap.Uint64("channelID", uint64(channelID)),
				zap.Uint64("messageID", uint64(messageID)),
				zap.Error(err))
		}
	})
}

// notify sends a notice and returns its id, or zero when it could not be sent.
func (d *Dispatcher) notify(ctx context.Context, channelID snowflake.ID, content string) snowflake.ID {
	id, err := d.platform.SendMessage(ctx, channelID, platform.Message{Content: content})
	if err != nil {
		d.logger.Warn("Failed to send notice",
			zap.Uint64("channelID", uint64(channelID)),
			zap.Error(err))
		return 0
	}

	return id
}

// audit writes an audit record and reports whether it landed.
func (d *Dispatcher) audit(ctx context.Context, guildID snowflake.ID, entry audit.Entry) bool {
	written, err := d.auditor.Log(ctx, guildID, entry)
	if err != nil {
		d.logger.Error("Failed to write audit record",
			zap.Uint64("guildID", uint64(guildID)),
			zap.String("kind", entry.Kind.String()),
			zap.Error(err))
		return false
	}

	return written
}

// classify maps a failed platform call to a result. Rejections are absorbed, everything else is returned.
func (d *Dispatcher) classify(err error, kind audit.Kind, req Request, target platform.Member) (Result, error) {
	if platform.IsRejected(err) {
		d.logger.Debug("Action rejected by platform",
			zap.String("kind", kind.String()),
			zap.Uint64("guildID", uint64(req.GuildID)),
			zap.Uint64("targetID", uint64(target.ID)),
			zap.Error(err))
		return Result{Outcome: OutcomeRejected}, nil
	}

	return Result{Outcome: OutcomeFailed}, fmt.Errorf("failed to %s member: %w", kind, err)
}

func (d *Dispatcher) start(ctx context.Context, name string, req Request, target platform.Member) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "action."+name, trace.WithAttributes(
		attribute.Int64("guild.id", int64(req.GuildID)),
		attribute.Int64("channel.id", int64(req.ChannelID)),
		attribute.Int64("actor.id", int64(req.Actor.ID)),
		attribute.Int64("target.id", int64(target.ID)),
	))
}

func endSpan(span trace.Span, result Result, err error) {
	defer span.End()

	span.SetAttributes(attribute.Int("outcome", int(result.Outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

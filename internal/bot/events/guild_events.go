package events

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/discordapi"
	"go.uber.org/zap"
)

// handlerTimeout bounds the work done for a single gateway event.
const handlerTimeout = 30 * time.Second

// Router receives converted gateway events.
type Router interface {
	OnMemberJoin(ctx context.Context, member platform.Member)
	OnMessage(ctx context.Context, msg platform.InboundMessage)
}

// Tracker counts in-flight handlers so shutdown can wait for them.
type Tracker interface {
	Add(delta int)
	Done()
}

// GuildEventHandler converts disgo guild events and hands them to the router.
// Messages of one channel are handled one at a time in delivery order, while
// different channels and member joins run concurrently.
type GuildEventHandler struct {
	router  Router
	tracker Tracker
	queues  *xsync.MapOf[snowflake.ID, *channelQueue]
	logger  *zap.Logger
}

// channelQueue holds the pending message jobs of one channel. It is only
// touched inside Compute on the queues map.
type channelQueue struct {
	jobs []func()
}

// NewGuildEventHandler creates a new instance of the guild event handler.
func NewGuildEventHandler(router Router, tracker Tracker, logger *zap.Logger) *GuildEventHandler {
	return &GuildEventHandler{
		router:  router,
		tracker: tracker,
		queues:  xsync.NewMapOf[snowflake.ID, *channelQueue](),
		logger:  logger.Named("guild_events"),
	}
}

// Listener returns the disgo listener for the handler.
func (h *GuildEventHandler) Listener() *events.ListenerAdapter {
	return &events.ListenerAdapter{
		OnReady:              h.OnReady,
		OnGuildMemberJoin:    h.OnGuildMemberJoin,
		OnGuildMessageCreate: h.OnGuildMessageCreate,
	}
}

// OnReady logs the identity the gateway session is running as.
func (h *GuildEventHandler) OnReady(event *events.Ready) {
	h.logger.Info("Logged in",
		zap.String("username", event.User.Username),
		zap.String("userID", event.User.ID.String()),
		zap.Int("guilds", len(event.Guilds)))
}

// OnGuildMemberJoin handles a member joining a guild.
func (h *GuildEventHandler) OnGuildMemberJoin(event *events.GuildMemberJoin) {
	member := discordapi.MemberFrom(event.Member)
	member.GuildID = event.GuildID

	h.tracker.Add(1)

	go func() {
		defer h.tracker.Done()

		h.run("member_join", func(ctx context.Context) {
			h.router.OnMemberJoin(ctx, member)
		})
	}()
}

// OnGuildMessageCreate handles a message posted in a guild channel.
func (h *GuildEventHandler) OnGuildMessageCreate(event *events.GuildMessageCreate) {
	msg := platform.InboundMessage{
		ID:        event.Message.ID,
		GuildID:   event.GuildID,
		ChannelID: event.ChannelID,
		Author:    discordapi.UserMember(event.GuildID, event.Message.Author),
		Content:   event.Message.Content,
	}

	// Webhook posts have no member behind them
	if event.Message.WebhookID != nil {
		msg.Author.Bot = true
	}

	h.enqueue(msg.ChannelID, func() {
		h.run("message_create", func(ctx context.Context) {
			h.router.OnMessage(ctx, msg)
		})
	})
}

// enqueue appends job to the channel's queue, starting a worker when the queue was idle.
func (h *GuildEventHandler) enqueue(channelID snowflake.ID, job func()) {
	h.tracker.Add(1)

	start := false
	h.queues.Compute(channelID, func(q *channelQueue, loaded bool) (*channelQueue, bool) {
		if !loaded {
			q = &channelQueue{}
			start = true
		}

		q.jobs = append(q.jobs, job)

		return q, false
	})

	if start {
		go h.drain(channelID)
	}
}

// drain runs the channel's jobs in order and removes the queue once it is empty.
func (h *GuildEventHandler) drain(channelID snowflake.ID) {
	for {
		var job func()

		h.queues.Compute(channelID, func(q *channelQueue, loaded bool) (*channelQueue, bool) {
			if !loaded || len(q.jobs) == 0 {
				return q, true
			}

			job = q.jobs[0]
			q.jobs[0] = nil
			q.jobs = q.jobs[1:]

			return q, false
		})

		if job == nil {
			return
		}

		job()
		h.tracker.Done()
	}
}

// run calls fn with a bounded context and panic recovery.
func (h *GuildEventHandler) run(name string, fn func(ctx context.Context)) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in event handler",
				zap.String("event", name),
				zap.Any("panic", r))
		}

		h.logger.Debug("Event handled",
			zap.String("event", name),
			zap.Duration("duration", time.Since(start)))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	fn(ctx)
}

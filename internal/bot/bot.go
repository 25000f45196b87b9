package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/gateway"
	"github.com/robalyx/warden/internal/bot/events"
	"github.com/robalyx/warden/internal/bot/router"
	"github.com/robalyx/warden/internal/moderation/action"
	"github.com/robalyx/warden/internal/moderation/audit"
	"github.com/robalyx/warden/internal/moderation/muterole"
	"github.com/robalyx/warden/internal/moderation/spam"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/discordapi"
	"github.com/robalyx/warden/internal/settings"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// closeTimeout bounds how long closing the gateway may take.
const closeTimeout = 10 * time.Second

// Options tunes the moderation pipeline.
type Options struct {
	NoticeTTL            time.Duration
	OverwriteConcurrency int
}

// Bot owns the Discord client and the moderation pipeline fed by it.
type Bot struct {
	client     bot.Client
	dispatcher *action.Dispatcher
	sweeper    *spam.Sweeper
	logger     *zap.Logger
	handlers   sync.WaitGroup
}

// New wires the moderation pipeline to a disgo client. The client is not connected until Run.
func New(
	token string,
	store *settings.Store,
	detector *spam.Detector,
	sweeper *spam.Sweeper,
	opts Options,
	logger *zap.Logger,
) (*Bot, error) {
	b := &Bot{
		sweeper: sweeper,
		logger:  logger.Named("bot"),
	}

	// The listener needs the router, which needs the client, so it resolves through this indirection
	var eventRouter *router.Router
	handler := events.NewGuildEventHandler(lazyRouter{get: func() *router.Router { return eventRouter }}, &b.handlers, logger)

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
			),
		),
		bot.WithEventListeners(handler.Listener()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	p := discordapi.New(client)
	self := platform.Member{ID: client.ID(), Bot: true}

	b.client = client
	b.dispatcher = action.NewDispatcher(
		p,
		muterole.New(p, opts.OverwriteConcurrency, logger),
		audit.NewLogger(p, store, logger),
		action.Options{Self: self, NoticeTTL: opts.NoticeTTL},
		logger,
	)

	eventRouter = router.New(router.Dependencies{
		Platform:   p,
		Settings:   store,
		Detector:   detector,
		Dispatcher: b.dispatcher,
	}, logger)

	return b, nil
}

// Run opens the gateway and runs the spam sweeper until ctx is cancelled.
// On return the gateway is closed and every in-flight handler has finished.
func (b *Bot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.sweeper.Run(ctx)
	})

	g.Go(func() error {
		b.logger.Info("Starting bot")

		if err := b.client.OpenGateway(ctx); err != nil {
			return fmt.Errorf("failed to open gateway: %w", err)
		}

		<-ctx.Done()
		b.close()

		return nil
	})

	return g.Wait()
}

// close shuts the gateway and waits for handlers and pending notice deletions.
func (b *Bot) close() {
	b.logger.Info("Closing bot")

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	b.client.Close(ctx)
	b.handlers.Wait()
	b.dispatcher.Wait()
}

// lazyRouter forwards events to a router assigned after the client exists.
type lazyRouter struct {
	get func() *router.Router
}

func (l lazyRouter) OnMemberJoin(ctx context.Context, member platform.Member) {
	l.get().OnMemberJoin(ctx, member)
}

func (l lazyRouter) OnMessage(ctx context.Context, msg platform.InboundMessage) {
	l.get().OnMessage(ctx, msg)
}

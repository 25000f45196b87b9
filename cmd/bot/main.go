package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/bot"
	"github.com/robalyx/warden/internal/moderation/spam"
	"github.com/robalyx/warden/internal/settings"
	"github.com/robalyx/warden/internal/setup"
	"github.com/robalyx/warden/internal/storage"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// BotLogDir specifies where bot log files are stored.
	BotLogDir = "logs/bot_logs"
	// CLILogDir specifies where log files of the settings commands are stored.
	CLILogDir = "logs/cli_logs"
)

var ErrUsage = errors.New("expected GUILD FIELD VALUE arguments")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "warden",
		Usage: "Discord moderation assistant",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return runBot(ctx)
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect to Discord and start moderating",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runBot(ctx)
				},
			},
			{
				Name:  "settings",
				Usage: "Inspect or change stored guild settings",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Print the settings document as JSON",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return showSettings(ctx)
						},
					},
					{
						Name:      "set",
						Usage:     "Change one setting of a guild",
						ArgsUsage: "GUILD FIELD VALUE",
						Action: func(ctx context.Context, c *cli.Command) error {
							if c.Args().Len() != 3 {
								return ErrUsage
							}

							return setSetting(ctx, c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
						},
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1) //nolint:gocritic
	}
}

func runBot(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, BotLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	moderation := app.Config.Bot.Moderation
	detector := spam.NewDetector(moderation.SpamThreshold)
	sweeper := spam.NewSweeper(detector, moderation.SweepInterval(), app.Logger)

	discordBot, err := bot.New(
		app.Config.Bot.Discord.Token,
		app.Store,
		detector,
		sweeper,
		bot.Options{
			NoticeTTL:            moderation.NoticeTTL(),
			OverwriteConcurrency: moderation.OverwriteConcurrency,
		},
		app.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	app.Logger.Info("Bot starting, waiting for interrupt signal to shut down")

	if err := discordBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	app.Logger.Info("Bot stopped")

	return nil
}

func showSettings(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, CLILogDir)
	if err != nil {
		return err
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	data, err := storage.Encode(app.Store.Snapshot())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(os.Stdout, string(data))

	return err
}

func setSetting(ctx context.Context, guild, fieldName, value string) error {
	guildID, err := snowflake.Parse(guild)
	if err != nil {
		return fmt.Errorf("invalid guild id %q: %w", guild, err)
	}

	field, err := settings.FieldString(fieldName)
	if err != nil {
		return err
	}

	app, err := setup.InitializeApp(ctx, CLILogDir)
	if err != nil {
		return err
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	updated, err := app.Store.Set(ctx, guildID, field, value)
	if err != nil {
		return err
	}

	app.Logger.Info("Updated guild settings",
		zap.Stringer("guild", guildID),
		zap.Stringer("field", field),
		zap.String("welcome", updated.WelcomeChannel),
		zap.String("modLog", updated.ModLogChannel),
		zap.String("prefix", updated.Prefix))

	return nil
}

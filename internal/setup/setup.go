package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robalyx/warden/internal/redis"
	"github.com/robalyx/warden/internal/settings"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/robalyx/warden/internal/setup/telemetry"
	"github.com/robalyx/warden/internal/storage"
	"github.com/robalyx/warden/pkg/utils"
	"go.uber.org/zap"
)

// App bundles the core dependencies needed by every command.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	LogManager   *telemetry.Manager // Log and trace management
	RedisManager *redis.Manager     // Redis connection manager, nil unless the redis backend is selected
	Store        *settings.Store    // Guild settings store, already loaded
}

// InitializeApp loads configuration, sets up logging and opens the settings store.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(logDir, &cfg.Common.Debug)
	logManager.EnableTracing(cfg.Common.Telemetry.UptraceDSN, config.RepositoryVersion)

	logger, err := logManager.Logger()
	if err != nil {
		logManager.Stop(ctx)
		return nil, err
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		LogManager: logManager,
	}

	backend, err := app.openBackend(ctx)
	if err != nil {
		app.Cleanup(ctx)
		return nil, err
	}

	store := settings.NewStore(backend, cfg.Bot.Moderation.DefaultPrefix, logger)
	app.Store = store

	retry := cfg.Common.Retry
	opts := utils.StartupRetryOptions(
		retry.MaxRetries,
		time.Duration(retry.Delay)*time.Millisecond,
		time.Duration(retry.MaxDelay)*time.Millisecond,
	)

	_, err = utils.WithRetry(ctx, func() (struct{}, error) {
		err := store.Load(ctx)
		if errors.Is(err, storage.ErrCorruptDocument) {
			return struct{}{}, utils.Permanent(err)
		}

		if err != nil {
			logger.Warn("Failed to load settings, retrying", zap.Error(err))
		}

		return struct{}{}, err
	}, opts)
	if err != nil {
		app.Cleanup(ctx)
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	logger.Info("Application initialized",
		zap.String("backend", cfg.Common.Storage.Backend),
		zap.String("sessionDir", logManager.SessionDir()))

	return app, nil
}

// Cleanup shuts components down in reverse initialization order.
// Errors are logged so that every component gets a cleanup attempt.
func (s *App) Cleanup(ctx context.Context) {
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			s.Logger.Error("Failed to close settings store", zap.Error(err))
		}
	}

	// Redis is closed after the store since the redis backend borrows its client
	if s.RedisManager != nil {
		s.RedisManager.Close()
	}

	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	s.LogManager.Stop(ctx)
}

// openBackend creates the storage backend selected in the configuration.
func (s *App) openBackend(ctx context.Context) (storage.Backend, error) {
	cfg := s.Config.Common

	switch cfg.Storage.Backend {
	case config.BackendFile:
		return storage.NewFileBackend(cfg.Storage.FilePath), nil
	case config.BackendSQLite:
		return storage.NewSQLiteBackend(cfg.Storage.SQLitePath)
	case config.BackendRedis:
		s.RedisManager = redis.NewManager(&cfg.Redis, s.Logger)

		client, err := s.RedisManager.GetClient(redis.SettingsDBIndex)
		if err != nil {
			return nil, err
		}

		return storage.NewRedisBackend(client, cfg.Storage.RedisKey), nil
	case config.BackendPostgres:
		return storage.NewPostgresBackend(ctx, storage.PostgresOptions{
			Host:         cfg.PostgreSQL.Host,
			Port:         cfg.PostgreSQL.Port,
			User:         cfg.PostgreSQL.User,
			Password:     cfg.PostgreSQL.Password,
			DBName:       cfg.PostgreSQL.DBName,
			MaxOpenConns: cfg.PostgreSQL.MaxOpenConns,
			MaxIdleConns: cfg.PostgreSQL.MaxIdleConns,
		})
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownBackend, cfg.Storage.Backend)
	}
}

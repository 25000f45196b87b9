package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robalyx/warden/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrPersistFailed wraps any failure to write the settings document.
	ErrPersistFailed = errors.New("failed to persist settings")
	// ErrInvalidValue is returned when a setting value is rejected before persisting.
	ErrInvalidValue = errors.New("invalid setting value")
	// ErrStoreClosed is returned for mutations after Close.
	ErrStoreClosed = errors.New("settings store is closed")
)

// clearAutoRole is the value accepted to unset the auto role.
const clearAutoRole = "none"

// Store holds per-guild settings in memory and persists the whole document on every change.
type Store struct {
	backend       storage.Backend
	logger        *zap.Logger
	defaultPrefix string

	mu     sync.RWMutex // Protects guilds and closed
	guilds map[snowflake.ID]*GuildSettings
	closed bool

	// guildLocks serializes create and mutate sequences per guild.
	guildLocks *xsync.MapOf[snowflake.ID, *sync.Mutex]
	// persistMu serializes whole-document writes so a newer snapshot is never overwritten by an older one.
	persistMu sync.Mutex
}

// NewStore creates an empty store. Call Load before serving events.
func NewStore(backend storage.Backend, defaultPrefix string, logger *zap.Logger) *Store {
	if defaultPrefix == "" {
		defaultPrefix = DefaultPrefix
	}

	return &Store{
		backend:       backend,
		logger:        logger.Named("settings"),
		defaultPrefix: defaultPrefix,
		guilds:        make(map[snowflake.ID]*GuildSettings),
		guildLocks:    xsync.NewMapOf[snowflake.ID, *sync.Mutex](),
	}
}

// Load replaces the in-memory state with the persisted document.
func (s *Store) Load(ctx context.Context) error {
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	guilds := make(map[snowflake.ID]*GuildSettings, len(doc))

	for key, record := range doc {
		guildID, err := snowflake.Parse(key)
		if err != nil {
			s.logger.Warn("Skipping settings record with invalid guild id",
				zap.String("key", key),
				zap.Error(err))

			continue
		}

		settings := fromRecord(guildID, record)
		if filled := settings.fillMissing(Defaults(guildID, s.defaultPrefix)); len(filled) > 0 {
			s.logger.Warn("Filled missing guild settings with defaults",
				zap.Uint64("guildID", uint64(guildID)),
				zap.Strings("fields", filled))
		}

		guilds[guildID] = &settings
	}

	s.mu.Lock()
	s.guilds = guilds
	s.mu.Unlock()

	s.logger.Info("Loaded guild settings", zap.Int("guilds", len(guilds)))

	return nil
}

// Get returns the settings for a guild, creating and persisting the defaults on first access.
// When the defaults could not be persisted the settings are still returned along with an error
// wrapping ErrPersistFailed.
func (s *Store) Get(ctx context.Context, guildID snowflake.ID) (GuildSettings, error) {
	if settings, ok := s.lookup(guildID); ok {
		return settings, nil
	}

	lock := s.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	// Another handler may have created the record while we waited
	if settings, ok := s.lookup(guildID); ok {
		return settings, nil
	}

	settings := Defaults(guildID, s.defaultPrefix)

	s.mu.Lock()
	s.guilds[guildID] = &settings
	s.mu.Unlock()

	s.logger.Debug("Created default guild settings", zap.Uint64("guildID", uint64(guildID)))

	if err := s.persist(ctx); err != nil {
		return settings, err
	}

	return settings, nil
}

// Set changes one field of a guild's settings and persists the whole document.
// The new value is visible to readers immediately, even when persisting fails.
func (s *Store) Set(ctx context.Context, guildID snowflake.ID, field Field, value string) (GuildSettings, error) {
	value = strings.TrimSpace(value)
	if err := validate(field, value); err != nil {
		return GuildSettings{}, err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return GuildSettings{}, ErrStoreClosed
	}

	if _, err := s.Get(ctx, guildID); err != nil && !errors.Is(err, ErrPersistFailed) {
		return GuildSettings{}, err
	}

	lock := s.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	current := s.guilds[guildID]
	updated := *current

	switch field {
	case FieldWelcome:
		updated.WelcomeChannel = value
	case FieldModLog:
		updated.ModLogChannel = value
	case FieldAutoRole:
		if strings.EqualFold(value, clearAutoRole) {
			value = ""
		}

		updated.AutoRole = value
	case FieldPrefix:
		updated.Prefix = value
	}

	s.guilds[guildID] = &updated
	s.mu.Unlock()

	s.logger.Info("Updated guild setting",
		zap.Uint64("guildID", uint64(guildID)),
		zap.String("field", field.String()),
		zap.String("value", value))

	if err := s.persist(ctx); err != nil {
		return updated, err
	}

	return updated, nil
}

// Snapshot returns a copy of the current document.
func (s *Store) Snapshot() storage.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := make(storage.Document, len(s.guilds))
	for guildID, settings := range s.guilds {
		doc[guildID.String()] = settings.toRecord()
	}

	return doc
}

// Close waits for any in-flight write to finish and rejects further mutations.
func (s *Store) Close() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return s.backend.Close()
}

func (s *Store) lookup(guildID snowflake.ID) (GuildSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.guilds[guildID]
	if !ok {
		return GuildSettings{}, false
	}

	return *settings, true
}

func (s *Store) guildLock(guildID snowflake.ID) *sync.Mutex {
	lock, _ := s.guildLocks.LoadOrCompute(guildID, func() *sync.Mutex {
		return &sync.Mutex{}
	})

	return lock
}

// persist writes the current document. The snapshot is taken while holding persistMu.
func (s *Store) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return fmt.Errorf("%w: %w", ErrPersistFailed, ErrStoreClosed)
	}

	if err := s.backend.Save(ctx, s.Snapshot()); err != nil {
		s.logger.Error("Failed to persist guild settings", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	return nil
}

func validate(field Field, value string) error {
	if !field.IsAField() {
		return fmt.Errorf("%w: unknown field %d", ErrInvalidValue, field)
	}

	switch field {
	case FieldWelcome, FieldModLog:
		if value == "" {
			return fmt.Errorf("%w: %s requires a channel name", ErrInvalidValue, field)
		}
	case FieldPrefix:
		if value == "" || strings.ContainsFunc(value, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }) {
			return fmt.Errorf("%w: prefix must be non-empty and contain no whitespace", ErrInvalidValue)
		}
	case FieldAutoRole:
	}

	return nil
}

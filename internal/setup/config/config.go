package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrUnknownBackend        = errors.New("unknown storage backend")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.1.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// envKeys maps the environment variables that may carry secrets to their config keys.
var envKeys = map[string]string{ //nolint:gochecknoglobals
	"TOKEN":                               "bot.discord.token",
	"WARDEN_BOT_DISCORD_TOKEN":            "bot.discord.token",
	"WARDEN_COMMON_REDIS_PASSWORD":        "common.redis.password",
	"WARDEN_COMMON_POSTGRESQL_PASSWORD":   "common.postgresql.password",
	"WARDEN_COMMON_TELEMETRY_UPTRACE_DSN": "common.telemetry.uptrace_dsn",
}

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Bot    BotConfig
}

// CommonConfig contains configuration shared by every command.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	Storage    Storage    `koanf:"storage"`
	Retry      Retry      `koanf:"retry"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

// BotConfig contains Discord bot specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int `koanf:"version"`
	// Discord configuration.
	Discord Discord `koanf:"discord"`
	// Moderation tuning.
	Moderation Moderation `koanf:"moderation"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
}

// Storage selects where guild settings are persisted.
type Storage struct {
	// Backend is one of file, redis, sqlite or postgres.
	Backend string `koanf:"backend"`
	// Path of the JSON document for the file backend.
	FilePath string `koanf:"file_path"`
	// Path of the database for the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`
	// Key holding the document for the redis backend.
	RedisKey string `koanf:"redis_key"`
}

// Retry contains retry configuration for startup I/O.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Telemetry contains tracing export configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing export is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
}

// Discord contains Discord bot configuration.
type Discord struct {
	// Discord bot token for authentication.
	Token string `koanf:"token"`
}

// Moderation tunes the moderation pipeline.
type Moderation struct {
	// Messages allowed per sweep window before an automatic mute.
	SpamThreshold int `koanf:"spam_threshold"`
	// Spam counter reset interval in milliseconds.
	SweepIntervalMS int `koanf:"sweep_interval_ms"`
	// Lifetime of self-deleting notices in milliseconds.
	NoticeTTLMS int `koanf:"notice_ttl_ms"`
	// Prefix for guilds that have not set their own.
	DefaultPrefix string `koanf:"default_prefix"`
	// Parallel channel overwrites when creating the mute role.
	OverwriteConcurrency int `koanf:"overwrite_concurrency"`
}

// SweepInterval returns the spam window as a duration.
func (m Moderation) SweepInterval() time.Duration {
	return time.Duration(m.SweepIntervalMS) * time.Millisecond
}

// NoticeTTL returns the notice lifetime as a duration.
func (m Moderation) NoticeTTL() time.Duration {
	return time.Duration(m.NoticeTTLMS) * time.Millisecond
}

// LoadConfig loads the configuration from the first config path holding each file.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".warden",
		homeDir + "/.warden/config",
		"/etc/warden/config",
		"/app/config",
		"config",
		".",
	}

	return LoadFrom(configPaths)
}

// LoadFrom loads common.toml and bot.toml from the given search paths, then applies
// secrets from the environment and fills unset values with defaults.
func LoadFrom(configPaths []string) (*Config, string, error) {
	k := koanf.New(".")

	var usedConfigPath string

	configFiles := []string{"common", "bot"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if _, err := os.Stat(configPath); err != nil {
				continue
			}

			if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
				return nil, "", fmt.Errorf("failed to parse %s: %w", configPath, err)
			}

			configLoaded = true

			if usedConfigPath == "" {
				usedConfigPath = path
			}

			break
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	// Secrets may come from the environment instead of the files
	for _, prefix := range []string{"TOKEN", "WARDEN_"} {
		if err := k.Load(env.Provider(prefix, ".", func(s string) string {
			return envKeys[s]
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load environment: %w", err)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("bot", config.Bot.Version, CurrentBotVersion); err != nil {
		return nil, "", err
	}

	config.applyDefaults()

	switch config.Common.Storage.Backend {
	case BackendFile, BackendRedis, BackendSQLite, BackendPostgres:
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownBackend, config.Common.Storage.Backend)
	}

	return &config, usedConfigPath, nil
}

// applyDefaults fills values left unset in the files.
func (c *Config) applyDefaults() {
	setDefault(&c.Common.Debug.LogLevel, "info")
	setDefault(&c.Common.Debug.MaxLogsToKeep, 10)
	setDefault(&c.Common.Debug.MaxLogLines, 10000)
	setDefault(&c.Common.Storage.Backend, BackendFile)
	setDefault(&c.Common.Storage.FilePath, "data/settings.json")
	setDefault(&c.Common.Storage.SQLitePath, "data/settings.db")
	setDefault(&c.Common.Storage.RedisKey, "warden:settings")
	setDefault(&c.Common.Retry.MaxRetries, 5)
	setDefault(&c.Common.Retry.Delay, 500)
	setDefault(&c.Common.Retry.MaxDelay, 10000)
	setDefault(&c.Bot.Moderation.SpamThreshold, 5)
	setDefault(&c.Bot.Moderation.SweepIntervalMS, 5000)
	setDefault(&c.Bot.Moderation.NoticeTTLMS, 3000)
	setDefault(&c.Bot.Moderation.DefaultPrefix, "!")
	setDefault(&c.Bot.Moderation.OverwriteConcurrency, 4)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/warden/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}

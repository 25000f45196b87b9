package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalyx/warden/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".toml"), []byte(body), 0o600))
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "common", "[common]\nversion = 1\n")
	writeConfig(t, dir, "bot", "[bot]\nversion = 1\n[bot.discord]\ntoken = \"file-token\"\n")

	cfg, used, err := config.LoadFrom([]string{filepath.Join(dir, "missing"), dir})
	require.NoError(t, err)
	assert.Equal(t, dir, used)

	assert.Equal(t, "file-token", cfg.Bot.Discord.Token)
	assert.Equal(t, config.BackendFile, cfg.Common.Storage.Backend)
	assert.Equal(t, "data/settings.json", cfg.Common.Storage.FilePath)
	assert.Equal(t, "info", cfg.Common.Debug.LogLevel)
	assert.Equal(t, 5, cfg.Bot.Moderation.SpamThreshold)
	assert.Equal(t, "!", cfg.Bot.Moderation.DefaultPrefix)
	assert.Equal(t, 5*time.Second, cfg.Bot.Moderation.SweepInterval())
	assert.Equal(t, 3*time.Second, cfg.Bot.Moderation.NoticeTTL())
}

func TestLoadFromEnvironmentOverridesToken(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "common", "[common]\nversion = 1\n")
	writeConfig(t, dir, "bot", "[bot]\nversion = 1\n[bot.discord]\ntoken = \"file-token\"\n")

	t.Setenv("TOKEN", "env-token")

	cfg, _, err := config.LoadFrom([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Bot.Discord.Token)
}

func TestLoadFromErrors(t *testing.T) {
	tests := []struct {
		name   string
		common string
		bot    string
		want   error
	}{
		{
			name: "missing file",
			bot:  "[bot]\nversion = 1\n",
			want: config.ErrConfigFileNotFound,
		},
		{
			name:   "missing version",
			common: "[common.debug]\nlog_level = \"info\"\n",
			bot:    "[bot]\nversion = 1\n",
			want:   config.ErrConfigVersionMissing,
		},
		{
			name:   "version mismatch",
			common: "[common]\nversion = 1\n",
			bot:    "[bot]\nversion = 99\n",
			want:   config.ErrConfigVersionMismatch,
		},
		{
			name:   "unknown backend",
			common: "[common]\nversion = 1\n[common.storage]\nbackend = \"etcd\"\n",
			bot:    "[bot]\nversion = 1\n",
			want:   config.ErrUnknownBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.common != "" {
				writeConfig(t, dir, "common", tt.common)
			}

			writeConfig(t, dir, "bot", tt.bot)

			_, _, err := config.LoadFrom([]string{dir})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Providers.RequestTimeout.Duration)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, 1, cfg.Resolution.Concurrency)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[general]
log_level = "debug"

[providers]
request_timeout = "3s"
max_retries = 5

[cache]
backend = "redis"
ttl = "1m"
redis_addr = "cache:6379"
redis_db = 2

[resolution]
concurrency = 8

[schedule]
resolve_interval = "30s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./data/skysignal.db", cfg.General.DBPath)
	assert.Equal(t, 3*time.Second, cfg.Providers.RequestTimeout.Duration)
	assert.Equal(t, 5, cfg.Providers.MaxRetries)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, "cache:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 2, cfg.Cache.RedisDB)
	assert.Equal(t, 8, cfg.Resolution.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Schedule.ResolveInterval.Duration)
	assert.Equal(t, time.Hour, cfg.Schedule.LeaderboardInterval.Duration)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Cache, cfg.Cache)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDBPath, "/tmp/override.db")
	t.Setenv(EnvKalshiURL, "http://kalshi.test")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeConfig(t, "[general]\ndb_path = \"file.db\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.General.DBPath)
	assert.Equal(t, "http://kalshi.test", cfg.Providers.KalshiURL)
	assert.Equal(t, "warn", cfg.General.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad toml":       "[general\n",
		"bad duration":   "[cache]\nttl = \"soon\"\n",
		"unknown cache":  "[cache]\nbackend = \"memcached\"\n",
		"zero ttl":       "[cache]\nttl = \"0s\"\n",
		"zero timeout":   "[providers]\nrequest_timeout = \"0s\"\n",
		"no concurrency": "[resolution]\nconcurrency = 0\n",
		"bad log level":  "[general]\nlog_level = \"loud\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "config.toml", Path())
	t.Setenv(EnvConfigPath, "/etc/skysignal.toml")
	assert.Equal(t, "/etc/skysignal.toml", Path())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, loadDotEnv(filepath.Join(dir, "absent.env")))

	valid := filepath.Join(dir, "valid.env")
	require.NoError(t, os.WriteFile(valid, []byte("SKYSIGNAL_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SKYSIGNAL_TEST_DOTENV") })
	require.NoError(t, loadDotEnv(valid))
	assert.Equal(t, "from-file", os.Getenv("SKYSIGNAL_TEST_DOTENV"))

	malformed := filepath.Join(dir, "malformed.env")
	require.NoError(t, os.WriteFile(malformed, []byte("SKYSIGNAL_TEST_BROKEN=\"unterminated\n"), 0o644))
	err := loadDotEnv(malformed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed.env")
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment overrides, applied after the TOML file.
const (
	EnvConfigPath    = "SKYSIGNAL_CONFIG_PATH"
	EnvDBPath        = "SKYSIGNAL_DB_PATH"
	EnvLogLevel      = "SKYSIGNAL_LOG_LEVEL"
	EnvRedisAddr     = "SKYSIGNAL_REDIS_ADDR"
	EnvPolymarketURL = "SKYSIGNAL_POLYMARKET_URL"
	EnvKalshiURL     = "SKYSIGNAL_KALSHI_URL"
)

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	General    GeneralConfig    `toml:"general"`
	Providers  ProvidersConfig  `toml:"providers"`
	Cache      CacheConfig      `toml:"cache"`
	Resolution ResolutionConfig `toml:"resolution"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Reputation ReputationConfig `toml:"reputation"`
}

type GeneralConfig struct {
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
}

type ProvidersConfig struct {
	PolymarketURL        string   `toml:"polymarket_url"`
	KalshiURL            string   `toml:"kalshi_url"`
	RequestTimeout       Duration `toml:"request_timeout"`
	MaxRetries           int      `toml:"max_retries"`
	RetryInitialInterval Duration `toml:"retry_initial_interval"`
}

type CacheConfig struct {
	Backend       string   `toml:"backend"`
	TTL           Duration `toml:"ttl"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	RedisPrefix   string   `toml:"redis_prefix"`
}

type ResolutionConfig struct {
	Concurrency       int `toml:"concurrency"`
	PendingBatchLimit int `toml:"pending_batch_limit"`
}

type ScheduleConfig struct {
	ResolveInterval     Duration `toml:"resolve_interval"`
	LeaderboardInterval Duration `toml:"leaderboard_interval"`
}

type ReputationConfig struct {
	LeaderboardSize int `toml:"leaderboard_size"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Path returns the config file location, honouring SKYSIGNAL_CONFIG_PATH.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return "config.toml"
}

// Load reads the TOML file at path over the defaults, then applies .env and
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadDotEnv exports the variables in the given files. Missing files are
// skipped; unreadable or malformed ones are reported.
func loadDotEnv(filenames ...string) error {
	for _, name := range filenames {
		err := godotenv.Load(name)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{EnvDBPath, &c.General.DBPath},
		{EnvLogLevel, &c.General.LogLevel},
		{EnvRedisAddr, &c.Cache.RedisAddr},
		{EnvPolymarketURL, &c.Providers.PolymarketURL},
		{EnvKalshiURL, &c.Providers.KalshiURL},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	if c.General.DBPath == "" {
		return fmt.Errorf("general.db_path is required")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Providers.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("providers.request_timeout must be positive")
	}
	if c.Providers.MaxRetries < 0 {
		return fmt.Errorf("providers.max_retries must not be negative")
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL.Duration <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Resolution.Concurrency < 1 {
		return fmt.Errorf("resolution.concurrency must be at least 1")
	}
	if c.Schedule.ResolveInterval.Duration <= 0 || c.Schedule.LeaderboardInterval.Duration <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}
	return nil
}

// LogLevel parses general.log_level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.General.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid general.log_level %q", c.General.LogLevel)
	}
	return level, nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:   "./data/skysignal.db",
			LogLevel: "info",
		},
		Providers: ProvidersConfig{
			PolymarketURL:        "https://gamma-api.polymarket.com",
			KalshiURL:            "https://api.elections.kalshi.com/trade-api/v2",
			RequestTimeout:       Duration{10 * time.Second},
			MaxRetries:           2,
			RetryInitialInterval: Duration{250 * time.Millisecond},
		},
		Cache: CacheConfig{
			Backend:     CacheMemory,
			TTL:         Duration{15 * time.Minute},
			RedisAddr:   "localhost:6379",
			RedisPrefix: "skysignal:resolution:",
		},
		Resolution: ResolutionConfig{
			Concurrency:       1,
			PendingBatchLimit: 200,
		},
		Schedule: ScheduleConfig{
			ResolveInterval:     Duration{5 * time.Minute},
			LeaderboardInterval: Duration{1 * time.Hour},
		},
		Reputation: ReputationConfig{
			LeaderboardSize: 100,
		},
	}
}

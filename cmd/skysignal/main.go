package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonnyspicer/mango"
	"github.com/redis/go-redis/v9"

	"skysignal/internal/config"
	"skysignal/internal/db"
	"skysignal/internal/engine"
	"skysignal/internal/market"
	"skysignal/internal/reputation"
	"skysignal/internal/resolution"
	"skysignal/internal/scheduler"
	"skysignal/internal/store"
)

func main() {
	// Parse CLI flags.
	resolveSignal := flag.String("resolve-signal", "", "Resolve one signal by id and exit")
	resolveEvent := flag.String("resolve-event", "", "Resolve all pending signals for an event and exit")
	resolvePending := flag.Bool("resolve-pending", false, "Run one pass over due pending signals and exit")
	stats := flag.String("stats", "", "Print reputation stats for an address and exit")
	ranking := flag.String("ranking", "", "Print the leaderboard position of an address and exit")
	leaderboard := flag.String("leaderboard", "", `Print the leaderboard for a timeframe ("all", "24h", "7d", "30d") and exit`)
	recompute := flag.Bool("recompute", false, "Rewrite every user_stats row from the signals table and exit")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging.
	level, _ := cfg.LogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("skysignal starting")

	// Initialize database.
	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database initialized", "path", cfg.General.DBPath)

	st := store.New(database)

	cache, closeCache, err := newCache(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize resolution cache", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	httpClient := market.NewHTTPClient(cfg.Providers.RequestTimeout.Duration)
	fetcher := market.NewFetcher(cache, market.FetcherConfig{
		Timeout:              cfg.Providers.RequestTimeout.Duration,
		MaxRetries:           cfg.Providers.MaxRetries,
		RetryInitialInterval: cfg.Providers.RetryInitialInterval.Duration,
	},
		market.NewPolymarketProvider(httpClient, cfg.Providers.PolymarketURL),
		market.NewKalshiProvider(httpClient, cfg.Providers.KalshiURL),
		market.NewManifoldProvider(mango.DefaultClientInstance()),
	)

	resolver := resolution.NewResolver(fetcher, st)
	coordinator := resolution.NewCoordinator(resolver, st, cfg.Resolution.Concurrency)
	aggregator := reputation.NewAggregator(st, cfg.Reputation.LeaderboardSize)
	eng := engine.New(coordinator, aggregator, cfg.Resolution.PendingBatchLimit)

	// Graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	// One-shot commands.
	var out any
	switch {
	case *resolveSignal != "":
		out, err = eng.ResolveOne(ctx, *resolveSignal)
	case *resolveEvent != "":
		out, err = eng.ResolveForEvent(ctx, *resolveEvent)
	case *resolvePending:
		out, err = eng.ResolvePending(ctx)
	case *stats != "":
		out, err = eng.Stats(ctx, *stats)
	case *ranking != "":
		out, err = eng.Ranking(ctx, *ranking)
	case isFlagSet("leaderboard"):
		out, err = eng.Leaderboard(ctx, *leaderboard)
	case *recompute:
		var n int
		n, err = eng.Recompute(ctx)
		out = map[string]int{"users": n}
	default:
		sched := scheduler.New(eng, cfg.Schedule)
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scheduler error", "error", err)
			os.Exit(1)
		}
		slog.Info("skysignal stopped")
		return
	}

	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
	if err := printJSON(out); err != nil {
		slog.Error("failed to write output", "error", err)
		os.Exit(1)
	}
}

// newCache builds the configured resolution cache and its cleanup.
func newCache(cfg config.CacheConfig) (market.Cache, func(), error) {
	switch cfg.Backend {
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("using redis resolution cache", "addr", cfg.RedisAddr, "ttl", cfg.TTL.Duration)
		return market.NewRedisCache(client, cfg.RedisPrefix, cfg.TTL.Duration), func() { client.Close() }, nil
	default:
		return market.NewMemoryCache(cfg.TTL.Duration), func() {}, nil
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package market

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FetcherConfig bounds upstream calls.
type FetcherConfig struct {
	Timeout              time.Duration // whole fetch, retries included
	MaxRetries           int
	RetryInitialInterval time.Duration
}

// DefaultFetcherConfig returns a 10s timeout with two retries.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:              10 * time.Second,
		MaxRetries:           2,
		RetryInitialInterval: 250 * time.Millisecond,
	}
}

// Fetcher resolves markets through the matching provider, caching results.
type Fetcher struct {
	providers map[Platform]Provider
	cache     Cache
	cfg       FetcherConfig
}

func NewFetcher(cache Cache, cfg FetcherConfig, providers ...Provider) *Fetcher {
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetcherConfig().Timeout
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultFetcherConfig().RetryInitialInterval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	f := &Fetcher{
		providers: make(map[Platform]Provider, len(providers)),
		cache:     cache,
		cfg:       cfg,
	}
	for _, p := range providers {
		f.providers[p.Platform()] = p
	}
	return f
}

// NewHTTPClient returns the client shared by the HTTP providers.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// GetResolution returns the market's resolution, or nil when it could not be
// fetched. A nil result means "try again later", never "unresolved".
func (f *Fetcher) GetResolution(ctx context.Context, platform Platform, marketID string) *Resolution {
	key := CacheKey(platform, marketID)
	if r, ok := f.cache.Get(ctx, key); ok {
		slog.Debug("resolution cache hit", "key", key)
		return r
	}

	provider, ok := f.providers[platform]
	if !ok {
		slog.Warn("no provider configured", "platform", platform, "market", marketID)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var resolution *Resolution
	operation := func() error {
		r, err := provider.FetchResolution(ctx, marketID)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resolution = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.RetryInitialInterval
	b.MaxElapsedTime = f.cfg.Timeout
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.cfg.MaxRetries)), ctx)

	var attempts int
	notify := func(err error, wait time.Duration) {
		attempts++
		slog.Warn("resolution fetch failed, retrying",
			"platform", platform,
			"market", marketID,
			"attempt", attempts,
			"next_retry_in", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		slog.Warn("resolution fetch failed",
			"platform", platform,
			"market", marketID,
			"error", err,
		)
		return nil
	}
	if resolution == nil {
		return nil
	}

	f.cache.Set(ctx, key, resolution)
	return resolution
}

// ClearCache drops every cached resolution.
func (f *Fetcher) ClearCache(ctx context.Context) error {
	return f.cache.Clear(ctx)
}

// isTransient reports whether a retry could plausibly succeed: network
// failures, 429 and 5xx responses.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrUpstream)
}

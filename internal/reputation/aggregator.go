package reputation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"skysignal/internal/signal"
	"skysignal/internal/store"
)

// ErrInvalidTimeframe is returned for leaderboard windows that cannot be parsed.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// StatsStore is the storage the aggregator reads signals and user_stats from.
type StatsStore interface {
	AggregateSignals(ctx context.Context, address string, since int64) (signal.UserStats, bool, error)
	AggregateAllSignals(ctx context.Context, since int64) ([]signal.UserStats, error)
	ReadUserStats(ctx context.Context, address string) (*signal.UserStats, error)
	ReadAllUserStats(ctx context.Context) ([]signal.UserStats, error)
	UpsertUserStats(ctx context.Context, address string, c store.UserCounts) error
}

// Ranking is a user's position on the all-time leaderboard. Found is false
// when the address has neither signals nor a stats row.
type Ranking struct {
	Address    string `json:"user_address"`
	Rank       int    `json:"rank"`
	TotalUsers int    `json:"total_users"`
	Found      bool   `json:"found"`
}

// Aggregator derives per-user reputation from resolved signals.
type Aggregator struct {
	store StatsStore
	limit int
	now   func() time.Time
}

// NewAggregator builds an aggregator. A positive limit caps leaderboard size.
func NewAggregator(store StatsStore, limit int) *Aggregator {
	return &Aggregator{store: store, limit: limit, now: time.Now}
}

// allTime is the lower timestamp bound that admits every signal.
const allTime = math.MinInt64

// GetUserStats recomputes an address's counters from its signals and stores
// them. Addresses without signals fall back to their stored row, then to
// zero stats.
func (a *Aggregator) GetUserStats(ctx context.Context, address string) (signal.UserStats, error) {
	u, ok, err := a.store.AggregateSignals(ctx, address, allTime)
	if err != nil {
		return signal.UserStats{}, fmt.Errorf("aggregating stats for %s: %w", address, err)
	}
	if ok {
		if err := a.store.UpsertUserStats(ctx, address, countsOf(u)); err != nil {
			return signal.UserStats{}, err
		}
		return withDerived(u), nil
	}

	stored, err := a.store.ReadUserStats(ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return withDerived(signal.UserStats{Address: address, TotalEarnings: decimal.Zero}), nil
	}
	if err != nil {
		return signal.UserStats{}, err
	}
	return withDerived(*stored), nil
}

// GetLeaderboard returns users ordered by win rate, then total predictions,
// then total earnings, then address. An empty or "all" timeframe covers all
// history; otherwise only signals created inside the window count.
func (a *Aggregator) GetLeaderboard(ctx context.Context, timeframe string) ([]signal.UserStats, error) {
	window, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	var users []signal.UserStats
	if window == 0 {
		users, err = a.allTimeUsers(ctx)
	} else {
		users, err = a.store.AggregateAllSignals(ctx, a.now().Add(-window).Unix())
	}
	if err != nil {
		return nil, fmt.Errorf("building leaderboard: %w", err)
	}

	ranked := rank(users)
	if a.limit > 0 && len(ranked) > a.limit {
		ranked = ranked[:a.limit]
	}
	return ranked, nil
}

// GetUserRanking returns the 1-based position of address on the uncapped
// all-time leaderboard.
func (a *Aggregator) GetUserRanking(ctx context.Context, address string) (Ranking, error) {
	users, err := a.allTimeUsers(ctx)
	if err != nil {
		return Ranking{}, fmt.Errorf("ranking %s: %w", address, err)
	}
	ranked := rank(users)
	r := Ranking{Address: address, TotalUsers: len(ranked)}
	for i, u := range ranked {
		if u.Address == address {
			r.Rank = i + 1
			r.Found = true
			break
		}
	}
	return r, nil
}

// RecomputeAll rewrites the stats row of every author from the signals table.
// Rows for addresses without signals are left alone.
func (a *Aggregator) RecomputeAll(ctx context.Context) (int, error) {
	users, err := a.store.AggregateAllSignals(ctx, allTime)
	if err != nil {
		return 0, fmt.Errorf("recomputing user stats: %w", err)
	}
	for _, u := range users {
		if err := a.store.UpsertUserStats(ctx, u.Address, countsOf(u)); err != nil {
			return 0, err
		}
	}
	return len(users), nil
}

// RefreshUsers rewrites the stats rows of the given authors from their
// signals. Addresses without signals are skipped.
func (a *Aggregator) RefreshUsers(ctx context.Context, addresses []string) error {
	seen := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		if address == "" || seen[address] {
			continue
		}
		seen[address] = true

		u, ok, err := a.store.AggregateSignals(ctx, address, allTime)
		if err != nil {
			return fmt.Errorf("refreshing stats for %s: %w", address, err)
		}
		if !ok {
			continue
		}
		if err := a.store.UpsertUserStats(ctx, address, countsOf(u)); err != nil {
			return err
		}
	}
	return nil
}

// allTimeUsers merges signal aggregates with stored rows for addresses that
// have no signals.
func (a *Aggregator) allTimeUsers(ctx context.Context) ([]signal.UserStats, error) {
	users, err := a.store.AggregateAllSignals(ctx, allTime)
	if err != nil {
		return nil, err
	}
	stored, err := a.store.ReadAllUserStats(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(users))
	for _, u := range users {
		seen[u.Address] = true
	}
	for _, u := range stored {
		if !seen[u.Address] {
			users = append(users, u)
		}
	}
	return users, nil
}

func rank(users []signal.UserStats) []signal.UserStats {
	ranked := make([]signal.UserStats, len(users))
	for i, u := range users {
		ranked[i] = withDerived(u)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.WinRate != b.WinRate {
			return a.WinRate > b.WinRate
		}
		if a.TotalPredictions != b.TotalPredictions {
			return a.TotalPredictions > b.TotalPredictions
		}
		if c := a.TotalEarnings.Cmp(b.TotalEarnings); c != 0 {
			return c > 0
		}
		return a.Address < b.Address
	})
	return ranked
}

func withDerived(u signal.UserStats) signal.UserStats {
	u.WinRate = WinRate(u.WinCount, u.LossCount)
	u.Tier = TierFor(u.WinRate)
	return u
}

func countsOf(u signal.UserStats) store.UserCounts {
	return store.UserCounts{
		TotalPredictions: u.TotalPredictions,
		WinCount:         u.WinCount,
		LossCount:        u.LossCount,
		TotalEarnings:    u.TotalEarnings,
	}
}

// ParseTimeframe turns a leaderboard window into a duration. Zero means all
// time. Accepted forms are "", "all", "<n>d" and "<n>h"; minutes and other
// units are rejected so "1m" cannot be mistaken for a month.
func ParseTimeframe(timeframe string) (time.Duration, error) {
	tf := strings.ToLower(strings.TrimSpace(timeframe))
	if tf == "" || tf == "all" {
		return 0, nil
	}

	var unit time.Duration
	var count string
	switch {
	case strings.HasSuffix(tf, "d"):
		unit, count = 24*time.Hour, strings.TrimSuffix(tf, "d")
	case strings.HasSuffix(tf, "h"):
		unit, count = time.Hour, strings.TrimSuffix(tf, "h")
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, timeframe)
	}

	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, timeframe)
	}
	return time.Duration(n) * unit, nil
}

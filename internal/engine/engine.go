// Package engine is the surface thin handlers call: resolution on demand
// and reputation reads.
package engine

import (
	"context"
	"log/slog"

	"skysignal/internal/reputation"
	"skysignal/internal/resolution"
	"skysignal/internal/signal"
)

// Engine ties the resolution coordinator to the reputation aggregator.
type Engine struct {
	coordinator  *resolution.Coordinator
	aggregator   *reputation.Aggregator
	pendingLimit int
}

func New(coordinator *resolution.Coordinator, aggregator *reputation.Aggregator, pendingLimit int) *Engine {
	return &Engine{coordinator: coordinator, aggregator: aggregator, pendingLimit: pendingLimit}
}

// ResolveOne resolves a single signal by id. Only an unknown id is an error.
func (e *Engine) ResolveOne(ctx context.Context, signalID string) (resolution.Result, error) {
	res, err := e.coordinator.ResolveSignalByID(ctx, signalID)
	if err != nil {
		return res, err
	}
	e.refreshAuthors(ctx, []resolution.Result{res})
	return res, nil
}

// ResolveForEvent resolves every pending signal recorded for an event.
func (e *Engine) ResolveForEvent(ctx context.Context, eventID string) (resolution.Batch, error) {
	batch, err := e.coordinator.ResolveEventSignals(ctx, eventID)
	if err != nil {
		return batch, err
	}
	e.refreshAuthors(ctx, batch.Results)
	return batch, nil
}

// ResolvePending runs one pass over due pending signals.
func (e *Engine) ResolvePending(ctx context.Context) (resolution.Batch, error) {
	batch, err := e.coordinator.ResolvePending(ctx, e.pendingLimit)
	if err != nil {
		return batch, err
	}
	e.refreshAuthors(ctx, batch.Results)
	return batch, nil
}

// refreshAuthors rewrites user_stats for the authors of settled signals.
// Reads recompute on their own, so a failure here is logged, not returned.
func (e *Engine) refreshAuthors(ctx context.Context, results []resolution.Result) {
	var authors []string
	for _, r := range results {
		if r.Status == resolution.StatusResolved && r.Author != "" {
			authors = append(authors, r.Author)
		}
	}
	if len(authors) == 0 {
		return
	}
	if err := e.aggregator.RefreshUsers(ctx, authors); err != nil {
		slog.Error("failed to refresh user stats", "authors", len(authors), "error", err)
	}
}

func (e *Engine) Stats(ctx context.Context, address string) (signal.UserStats, error) {
	return e.aggregator.GetUserStats(ctx, address)
}

func (e *Engine) Ranking(ctx context.Context, address string) (reputation.Ranking, error) {
	return e.aggregator.GetUserRanking(ctx, address)
}

func (e *Engine) Leaderboard(ctx context.Context, timeframe string) ([]signal.UserStats, error) {
	return e.aggregator.GetLeaderboard(ctx, timeframe)
}

// Recompute rewrites every author's stats row from the signals table.
func (e *Engine) Recompute(ctx context.Context) (int, error) {
	return e.aggregator.RecomputeAll(ctx)
}

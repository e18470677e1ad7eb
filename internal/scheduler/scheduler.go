package scheduler

import (
	"context"
	"log/slog"
	"time"

	"skysignal/internal/config"
	"skysignal/internal/reputation"
	"skysignal/internal/resolution"
	"skysignal/internal/signal"
)

// Engine is the work the scheduler drives.
type Engine interface {
	ResolvePending(ctx context.Context) (resolution.Batch, error)
	Leaderboard(ctx context.Context, timeframe string) ([]signal.UserStats, error)
}

// Scheduler runs the periodic resolution pass and leaderboard report.
type Scheduler struct {
	engine Engine
	cfg    config.ScheduleConfig
}

func New(engine Engine, cfg config.ScheduleConfig) *Scheduler {
	return &Scheduler{engine: engine, cfg: cfg}
}

// Run starts all periodic loops and blocks until context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"resolve_interval", s.cfg.ResolveInterval.Duration,
		"leaderboard_interval", s.cfg.LeaderboardInterval.Duration,
	)

	// Run first cycle immediately.
	s.runResolution(ctx)
	s.runLeaderboardReport(ctx)

	resolveTicker := time.NewTicker(s.cfg.ResolveInterval.Duration)
	leaderboardTicker := time.NewTicker(s.cfg.LeaderboardInterval.Duration)
	defer resolveTicker.Stop()
	defer leaderboardTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-resolveTicker.C:
			s.runResolution(ctx)
		case <-leaderboardTicker.C:
			s.runLeaderboardReport(ctx)
		}
	}
}

func (s *Scheduler) runResolution(ctx context.Context) {
	slog.Info("starting resolution pass")
	batch, err := s.engine.ResolvePending(ctx)
	if err != nil {
		slog.Error("resolution pass failed", "error", err)
		return
	}
	if len(batch.Results) == 0 {
		slog.Info("no pending signals due this cycle")
	}
}

func (s *Scheduler) runLeaderboardReport(ctx context.Context) {
	board, err := s.engine.Leaderboard(ctx, "")
	if err != nil {
		slog.Error("leaderboard report failed", "error", err)
		return
	}
	reputation.LogLeaderboard("", board)
}

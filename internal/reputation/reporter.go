package reputation

import (
	"log/slog"

	"skysignal/internal/signal"
)

// LogLeaderboard logs a leaderboard as structured JSON, one line per user.
func LogLeaderboard(timeframe string, entries []signal.UserStats) {
	if timeframe == "" {
		timeframe = "all"
	}
	slog.Info("=== LEADERBOARD ===", "timeframe", timeframe, "users", len(entries))

	for i, u := range entries {
		slog.Info("leaderboard entry",
			"rank", i+1,
			"user_address", u.Address,
			"tier", u.Tier,
			"win_rate", u.WinRate,
			"wins", u.WinCount,
			"losses", u.LossCount,
			"predictions", u.TotalPredictions,
			"earnings", u.TotalEarnings.String(),
		)
	}
}

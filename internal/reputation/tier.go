package reputation

// Tier names, highest first.
const (
	TierSage         = "Sage"
	TierEliteAnalyst = "Elite Analyst"
	TierForecaster   = "Forecaster"
	TierPredictor    = "Predictor"
	TierNovice       = "Novice"
)

var tierThresholds = []struct {
	minWinRate float64
	name       string
}{
	{0.85, TierSage},
	{0.75, TierEliteAnalyst},
	{0.60, TierForecaster},
	{0.50, TierPredictor},
}

// TierFor maps a win rate to its tier. Lower bounds are inclusive.
func TierFor(winRate float64) string {
	for _, t := range tierThresholds {
		if winRate >= t.minWinRate {
			return t.name
		}
	}
	return TierNovice
}

// WinRate is wins over settled predictions, zero when nothing has settled.
func WinRate(wins, losses int) float64 {
	settled := wins + losses
	if settled < 1 {
		settled = 1
	}
	return float64(wins) / float64(settled)
}

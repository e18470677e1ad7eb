package signal

import (
	"github.com/shopspring/decimal"
)

// Outcome is the verdict stored on a signal row.
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeYes       Outcome = "YES" // raw market result, stored for signals without a side
	OutcomeNo        Outcome = "NO"
	OutcomeCorrect   Outcome = "CORRECT"
	OutcomeIncorrect Outcome = "INCORRECT"
)

// IsTerminal reports whether the outcome ends the resolution lifecycle.
func (o Outcome) IsTerminal() bool {
	switch o {
	case OutcomeYes, OutcomeNo, OutcomeCorrect, OutcomeIncorrect:
		return true
	}
	return false
}

// Side is the market outcome a signal backs.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide accepts YES/NO in any case. The empty string yields "" with ok=true
// because signals published before sides were captured have none.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "":
		return "", true
	case "YES", "yes", "Yes":
		return SideYes, true
	case "NO", "no", "No":
		return SideNo, true
	}
	return "", false
}

type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

type OddsEfficiency string

const (
	OddsEfficient   OddsEfficiency = "EFFICIENT"
	OddsInefficient OddsEfficiency = "INEFFICIENT"
)

// Signal is a published, attributable prediction about a market's outcome.
type Signal struct {
	ID                 string
	EventID            string // upstream market identifier, optionally prefixed "platform:"
	MarketTitle        string
	Venue              string
	EventTime          int64 // epoch seconds
	MarketSnapshotHash string
	WeatherJSON        string
	AIDigest           string
	Confidence         Confidence
	OddsEfficiency     OddsEfficiency
	Side               Side   // empty for legacy signals
	Platform           string // explicit provider tag; empty means infer from event_id
	AuthorAddress      string
	TxHash             *string
	TotalTips          decimal.Decimal
	Timestamp          int64 // created at, epoch seconds
	Outcome            *Outcome
	ResolvedAt         *int64
}

// IsResolved reports whether the signal already carries a terminal outcome.
func (s Signal) IsResolved() bool {
	return s.Outcome != nil && s.Outcome.IsTerminal()
}

// UserStats is the reputation summary for one wallet address.
type UserStats struct {
	Address          string          `json:"user_address"`
	TotalPredictions int             `json:"total_predictions"`
	WinCount         int             `json:"win_count"`
	LossCount        int             `json:"loss_count"`
	WinRate          float64         `json:"win_rate"`
	Tier             string          `json:"tier"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
}

// Pending returns the number of predictions without a scored verdict.
func (u UserStats) Pending() int {
	return u.TotalPredictions - u.WinCount - u.LossCount
}

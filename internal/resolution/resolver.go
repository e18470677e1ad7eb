package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"skysignal/internal/market"
	"skysignal/internal/signal"
)

// Status tags the result of one resolution attempt.
type Status string

const (
	StatusResolved Status = "RESOLVED"
	StatusPending  Status = "PENDING"
	StatusError    Status = "ERROR"
)

// Result reports what happened to one signal.
type Result struct {
	Status     Status          `json:"status"`
	SignalID   string          `json:"signal_id"`
	Author     string          `json:"author_address,omitempty"` // set on RESOLVED results
	Outcome    *signal.Outcome `json:"outcome,omitempty"`
	ResolvedAt *int64          `json:"resolved_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// SignalStore is the storage the resolution core reads and writes.
type SignalStore interface {
	FindSignalByID(ctx context.Context, id string) (*signal.Signal, error)
	FindPendingSignalsByEvent(ctx context.Context, eventID string) ([]signal.Signal, error)
	FindPendingSignals(ctx context.Context, before int64, limit int) ([]signal.Signal, error)
	UpdateSignalOutcome(ctx context.Context, id string, outcome signal.Outcome, resolvedAt int64) (bool, error)
}

// OutcomeFetcher returns a market's resolution, or nil when the fetch failed.
type OutcomeFetcher interface {
	GetResolution(ctx context.Context, platform market.Platform, marketID string) *market.Resolution
}

// Resolver settles individual signals against their market's resolution.
type Resolver struct {
	fetcher OutcomeFetcher
	store   SignalStore
	now     func() time.Time
}

func NewResolver(fetcher OutcomeFetcher, store SignalStore) *Resolver {
	return &Resolver{fetcher: fetcher, store: store, now: time.Now}
}

// ClassifyPlatform picks the provider for a signal and the market id to ask
// it for. An explicit platform tag wins; then a "platform:" prefix on the
// event id; then a "[platform]" marker in the title; else the default.
func ClassifyPlatform(sig signal.Signal) (market.Platform, string, error) {
	marketID := sig.EventID
	prefixed, stripped, hasPrefix := splitPlatformPrefix(sig.EventID)

	if sig.Platform != "" {
		p, err := market.ParsePlatform(sig.Platform)
		if err != nil {
			return "", "", err
		}
		if hasPrefix && prefixed == p {
			marketID = stripped
		}
		return p, marketID, nil
	}

	if hasPrefix {
		return prefixed, stripped, nil
	}

	title := strings.ToLower(sig.MarketTitle)
	for _, p := range market.Platforms() {
		if strings.Contains(title, "["+string(p)+"]") {
			return p, marketID, nil
		}
	}
	return market.DefaultPlatform, marketID, nil
}

func splitPlatformPrefix(eventID string) (market.Platform, string, bool) {
	head, rest, ok := strings.Cut(eventID, ":")
	if !ok || rest == "" {
		return "", "", false
	}
	p, err := market.ParsePlatform(head)
	if err != nil {
		return "", "", false
	}
	return p, rest, true
}

// Verdict scores a signal against a YES/NO market outcome. Signals without a
// captured side keep the raw market outcome.
func Verdict(side signal.Side, marketOutcome string) signal.Outcome {
	if side == "" {
		return signal.Outcome(marketOutcome)
	}
	if string(side) == marketOutcome {
		return signal.OutcomeCorrect
	}
	return signal.OutcomeIncorrect
}

// ResolveSignal settles one signal. It never returns an error: failures are
// reported as StatusError and unresolvable markets as StatusPending, leaving
// the row untouched so a later pass can retry.
func (r *Resolver) ResolveSignal(ctx context.Context, sig signal.Signal) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("signal resolution panicked", "signal_id", sig.ID, "panic", p)
			res = errorResult(sig.ID, fmt.Errorf("panic: %v", p))
		}
	}()

	if sig.IsResolved() {
		return resolvedResult(sig)
	}

	now := r.now()
	if sig.EventTime > now.Unix() {
		return pendingResult(sig.ID)
	}

	platform, marketID, err := ClassifyPlatform(sig)
	if err != nil {
		slog.Error("signal platform unusable", "signal_id", sig.ID, "platform", sig.Platform, "error", err)
		return errorResult(sig.ID, err)
	}

	resolution := r.fetcher.GetResolution(ctx, platform, marketID)
	if resolution == nil || !resolution.Resolved {
		return pendingResult(sig.ID)
	}

	marketOutcome, err := resolution.BinaryOutcome()
	if err != nil {
		slog.Warn("market resolved with ambiguous outcome, leaving signal pending",
			"signal_id", sig.ID,
			"platform", platform,
			"market", marketID,
			"error", err,
		)
		return pendingResult(sig.ID)
	}

	outcome := Verdict(sig.Side, marketOutcome)
	resolvedAt := now.Unix()

	applied, err := r.store.UpdateSignalOutcome(ctx, sig.ID, outcome, resolvedAt)
	if err != nil {
		slog.Error("failed to persist signal outcome", "signal_id", sig.ID, "error", err)
		return errorResult(sig.ID, err)
	}
	if !applied {
		return r.reload(ctx, sig.ID)
	}

	slog.Info("signal resolved",
		"signal_id", sig.ID,
		"event_id", sig.EventID,
		"platform", platform,
		"market_outcome", marketOutcome,
		"outcome", outcome,
	)
	return Result{
		Status:     StatusResolved,
		SignalID:   sig.ID,
		Author:     sig.AuthorAddress,
		Outcome:    &outcome,
		ResolvedAt: &resolvedAt,
	}
}

// reload reports the stored verdict after another writer won the update.
func (r *Resolver) reload(ctx context.Context, id string) Result {
	current, err := r.store.FindSignalByID(ctx, id)
	if err != nil {
		slog.Error("failed to reload signal after lost update", "signal_id", id, "error", err)
		return errorResult(id, err)
	}
	if !current.IsResolved() {
		return errorResult(id, errors.New("outcome update was not applied"))
	}
	slog.Info("signal already resolved by another writer", "signal_id", id, "outcome", *current.Outcome)
	return resolvedResult(*current)
}

func resolvedResult(sig signal.Signal) Result {
	outcome := *sig.Outcome
	res := Result{Status: StatusResolved, SignalID: sig.ID, Author: sig.AuthorAddress, Outcome: &outcome}
	if sig.ResolvedAt != nil {
		ts := *sig.ResolvedAt
		res.ResolvedAt = &ts
	}
	return res
}

func pendingResult(id string) Result {
	return Result{Status: StatusPending, SignalID: id}
}

func errorResult(id string, err error) Result {
	return Result{Status: StatusError, SignalID: id, Error: err.Error()}
}

package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"

	"skysignal/internal/signal"
	"skysignal/internal/store"
)

// ErrSignalNotFound is returned by ResolveSignalByID for unknown ids.
var ErrSignalNotFound = errors.New("signal not found")

// Batch is the outcome of resolving a list of signals, one result per input
// signal in input order.
type Batch struct {
	Results  []Result `json:"results"`
	Resolved int      `json:"resolved"`
	Pending  int      `json:"pending"`
	Errored  int      `json:"errored"`
}

// Summarize counts results by status.
func Summarize(results []Result) Batch {
	b := Batch{Results: results}
	for _, r := range results {
		switch r.Status {
		case StatusResolved:
			b.Resolved++
		case StatusPending:
			b.Pending++
		default:
			b.Errored++
		}
	}
	return b
}

// Coordinator resolves groups of signals without letting one failure stop
// the rest.
type Coordinator struct {
	resolver    *Resolver
	store       SignalStore
	concurrency int
}

// NewCoordinator builds a coordinator. Concurrency 1 resolves signals one at
// a time; higher values use a bounded worker pool.
func NewCoordinator(resolver *Resolver, store SignalStore, concurrency int) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{resolver: resolver, store: store, concurrency: concurrency}
}

// ResolveEventSignals resolves every PENDING signal recorded for eventID.
func (c *Coordinator) ResolveEventSignals(ctx context.Context, eventID string) (Batch, error) {
	signals, err := c.store.FindPendingSignalsByEvent(ctx, eventID)
	if err != nil {
		return Batch{}, fmt.Errorf("loading pending signals for event %s: %w", eventID, err)
	}
	batch := c.ResolveSignals(ctx, signals)
	slog.Info("event resolution complete",
		"event_id", eventID,
		"signals", len(signals),
		"resolved", batch.Resolved,
		"pending", batch.Pending,
		"errored", batch.Errored,
	)
	return batch, nil
}

// ResolveSignalByID loads and resolves one signal.
func (c *Coordinator) ResolveSignalByID(ctx context.Context, id string) (Result, error) {
	sig, err := c.store.FindSignalByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	if err != nil {
		// A failed read is a resolution failure, not a missing signal.
		slog.Error("failed to load signal", "signal_id", id, "error", err)
		return errorResult(id, err), nil
	}
	return c.resolver.ResolveSignal(ctx, *sig), nil
}

// ResolveSignalIDs resolves the given ids; unknown ids are tagged ERROR.
func (c *Coordinator) ResolveSignalIDs(ctx context.Context, ids []string) Batch {
	results := make([]Result, len(ids))
	var signals []signal.Signal
	var positions []int
	for i, id := range ids {
		sig, err := c.store.FindSignalByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = fmt.Errorf("%w: %s", ErrSignalNotFound, id)
			}
			results[i] = errorResult(id, err)
			continue
		}
		signals = append(signals, *sig)
		positions = append(positions, i)
	}

	resolved := c.ResolveSignals(ctx, signals).Results
	for j, pos := range positions {
		results[pos] = resolved[j]
	}
	return Summarize(results)
}

// ResolvePending resolves up to limit pending signals whose event time has
// passed. It backs the scheduled resolution pass.
func (c *Coordinator) ResolvePending(ctx context.Context, limit int) (Batch, error) {
	signals, err := c.store.FindPendingSignals(ctx, c.resolver.now().Unix(), limit)
	if err != nil {
		return Batch{}, fmt.Errorf("loading pending signals: %w", err)
	}
	batch := c.ResolveSignals(ctx, signals)
	slog.Info("pending resolution pass complete",
		"signals", len(signals),
		"resolved", batch.Resolved,
		"pending", batch.Pending,
		"errored", batch.Errored,
	)
	return batch, nil
}

// ResolveSignals resolves signals and returns exactly one result per input,
// in input order. Repeated ids are resolved once and share the result.
func (c *Coordinator) ResolveSignals(ctx context.Context, signals []signal.Signal) Batch {
	var unique []signal.Signal
	index := make(map[string]int, len(signals))
	for _, sig := range signals {
		if _, seen := index[sig.ID]; seen {
			continue
		}
		index[sig.ID] = len(unique)
		unique = append(unique, sig)
	}

	var resolved []Result
	if c.concurrency == 1 || len(unique) <= 1 {
		resolved = make([]Result, 0, len(unique))
		for _, sig := range unique {
			resolved = append(resolved, c.resolver.ResolveSignal(ctx, sig))
		}
	} else {
		resolved = c.resolveConcurrently(ctx, unique)
	}

	results := make([]Result, len(signals))
	for i, sig := range signals {
		results[i] = resolved[index[sig.ID]]
	}
	return Summarize(results)
}

// resolveConcurrently fans out over a pond pool; group results come back in
// submission order.
func (c *Coordinator) resolveConcurrently(ctx context.Context, signals []signal.Signal) []Result {
	pool := pond.NewResultPool[Result](c.concurrency)
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, sig := range signals {
		group.Submit(func() Result {
			return c.resolver.ResolveSignal(ctx, sig)
		})
	}

	results, err := group.Wait()
	if err != nil {
		slog.Error("resolution worker pool reported failure", "error", err)
	}
	if len(results) != len(signals) {
		filled := make([]Result, len(signals))
		copy(filled, results)
		results = filled
	}
	for i := range results {
		if results[i].SignalID == "" {
			results[i] = errorResult(signals[i].ID, fmt.Errorf("resolution task did not complete: %v", err))
		}
	}
	return results
}

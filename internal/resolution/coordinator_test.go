package resolution

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skysignal/internal/db"
	"skysignal/internal/market"
	"skysignal/internal/signal"
	"skysignal/internal/store"
)

func TestResolveEventSignals_BatchCompleteness(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	f.set(market.Polymarket, "rain-nyc", true, "YES")
	f.set(market.Kalshi, "rain-nyc", false, "")
	c := NewCoordinator(newTestResolver(f, s), s, 1)
	ctx := context.Background()

	insert(t, s, signal.Signal{ID: "a", EventID: "rain-nyc", AuthorAddress: "0x1", Side: signal.SideYes, Timestamp: 1})
	insert(t, s, signal.Signal{ID: "b", EventID: "rain-nyc", AuthorAddress: "0x2", Side: signal.SideNo, Timestamp: 2})
	insert(t, s, signal.Signal{ID: "c", EventID: "rain-nyc", Platform: "kalshi", AuthorAddress: "0x3", Timestamp: 3})
	insert(t, s, signal.Signal{ID: "d", EventID: "rain-nyc", Platform: "predictit", AuthorAddress: "0x4", Timestamp: 4})
	insert(t, s, signal.Signal{ID: "other", EventID: "snow-bos", AuthorAddress: "0x1", Timestamp: 5})

	batch, err := c.ResolveEventSignals(ctx, "rain-nyc")
	require.NoError(t, err)
	require.Len(t, batch.Results, 4)

	ids := []string{"a", "b", "c", "d"}
	for i, r := range batch.Results {
		assert.Equal(t, ids[i], r.SignalID)
	}
	assert.Equal(t, StatusResolved, batch.Results[0].Status)
	assert.Equal(t, StatusResolved, batch.Results[1].Status)
	assert.Equal(t, StatusPending, batch.Results[2].Status)
	assert.Equal(t, StatusError, batch.Results[3].Status)
	assert.Equal(t, 2, batch.Resolved)
	assert.Equal(t, 1, batch.Pending)
	assert.Equal(t, 1, batch.Errored)

	// Terminal signals are not picked up again.
	again, err := c.ResolveEventSignals(ctx, "rain-nyc")
	require.NoError(t, err)
	assert.Len(t, again.Results, 2)
	assert.Equal(t, "c", again.Results[0].SignalID)
}

func TestResolveSignalByID(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	f.set(market.Polymarket, "rain", true, "NO")
	c := NewCoordinator(newTestResolver(f, s), s, 1)
	ctx := context.Background()

	insert(t, s, signal.Signal{ID: "s1", EventID: "rain", AuthorAddress: "0x1", Side: signal.SideNo})

	res, err := c.ResolveSignalByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, res.Status)
	assert.Equal(t, signal.OutcomeCorrect, *res.Outcome)

	_, err = c.ResolveSignalByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrSignalNotFound)
}

func TestResolveSignalIDs_TagsMissing(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	f.set(market.Polymarket, "rain", true, "YES")
	c := NewCoordinator(newTestResolver(f, s), s, 1)

	insert(t, s, signal.Signal{ID: "s1", EventID: "rain", AuthorAddress: "0x1", Side: signal.SideYes})

	batch := c.ResolveSignalIDs(context.Background(), []string{"missing", "s1"})
	require.Len(t, batch.Results, 2)
	assert.Equal(t, StatusError, batch.Results[0].Status)
	assert.Equal(t, "missing", batch.Results[0].SignalID)
	assert.Equal(t, StatusResolved, batch.Results[1].Status)
	assert.Equal(t, 1, batch.Errored)
	assert.Equal(t, 1, batch.Resolved)
}

func TestResolveSignals_DuplicatesResolvedOnce(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	f.set(market.Polymarket, "rain", true, "YES")
	c := NewCoordinator(newTestResolver(f, s), s, 1)

	sig := insert(t, s, signal.Signal{ID: "s1", EventID: "rain", AuthorAddress: "0x1", Side: signal.SideYes})

	batch := c.ResolveSignals(context.Background(), []signal.Signal{sig, sig})
	require.Len(t, batch.Results, 2)
	assert.Equal(t, batch.Results[0], batch.Results[1])
	assert.Len(t, f.calls, 1)
	assert.Equal(t, 2, batch.Resolved)
}

func TestResolveSignals_ConcurrentPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	c := NewCoordinator(newTestResolver(f, s), s, 4)

	var signals []signal.Signal
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("sig-%02d", i)
		eventID := fmt.Sprintf("event-%02d", i)
		if i%3 != 0 {
			f.set(market.Polymarket, eventID, true, "YES")
		}
		signals = append(signals, insert(t, s, signal.Signal{ID: id, EventID: eventID, AuthorAddress: "0x1", Side: signal.SideYes}))
	}

	batch := c.ResolveSignals(context.Background(), signals)
	require.Len(t, batch.Results, len(signals))
	for i, r := range batch.Results {
		assert.Equal(t, signals[i].ID, r.SignalID)
		if i%3 == 0 {
			assert.Equal(t, StatusPending, r.Status)
		} else {
			assert.Equal(t, StatusResolved, r.Status)
		}
	}
	assert.Equal(t, 9, batch.Pending)
	assert.Equal(t, 16, batch.Resolved)
}

func TestResolveSignals_ConcurrentWritesOnFileDatabase(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))
	s := store.New(database)

	f := newFakeFetcher()
	var signals []signal.Signal
	for i := 0; i < 200; i++ {
		eventID := fmt.Sprintf("event-%03d", i)
		f.set(market.Polymarket, eventID, true, "YES")
		signals = append(signals, insert(t, s, signal.Signal{
			ID: fmt.Sprintf("sig-%03d", i), EventID: eventID, AuthorAddress: "0x1", Side: signal.SideYes,
		}))
	}

	c := NewCoordinator(newTestResolver(f, s), s, 16)
	batch := c.ResolveSignals(context.Background(), signals)
	require.Len(t, batch.Results, len(signals))
	for _, r := range batch.Results {
		assert.Equal(t, StatusResolved, r.Status, "%s: %s", r.SignalID, r.Error)
	}
	assert.Equal(t, len(signals), batch.Resolved)
	assert.Zero(t, batch.Errored)

	pending, err := s.FindPendingSignals(context.Background(), fixedNow.Unix(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResolvePending_OnlyDueSignals(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	f.set(market.Polymarket, "rain", true, "YES")
	c := NewCoordinator(newTestResolver(f, s), s, 2)

	insert(t, s, signal.Signal{ID: "due", EventID: "rain", AuthorAddress: "0x1", Side: signal.SideYes, EventTime: fixedNow.Unix() - 60})
	insert(t, s, signal.Signal{ID: "later", EventID: "rain", AuthorAddress: "0x1", Side: signal.SideYes, EventTime: fixedNow.Unix() + 3600})

	batch, err := c.ResolvePending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "due", batch.Results[0].SignalID)
	assert.Equal(t, StatusResolved, batch.Results[0].Status)

	empty, err := c.ResolvePending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Results)
	assert.NotNil(t, empty.Results)
}

type brokenListStore struct {
	SignalStore
}

func (brokenListStore) FindPendingSignalsByEvent(context.Context, string) ([]signal.Signal, error) {
	return nil, errors.New("db locked")
}

func TestResolveEventSignals_LoadError(t *testing.T) {
	s := newTestStore(t)
	c := NewCoordinator(newTestResolver(newFakeFetcher(), s), brokenListStore{SignalStore: s}, 1)
	_, err := c.ResolveEventSignals(context.Background(), "rain")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	b := Summarize([]Result{
		{Status: StatusResolved}, {Status: StatusPending}, {Status: StatusPending}, {Status: StatusError},
	})
	assert.Equal(t, 1, b.Resolved)
	assert.Equal(t, 2, b.Pending)
	assert.Equal(t, 1, b.Errored)
}

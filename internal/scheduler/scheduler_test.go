package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skysignal/internal/config"
	"skysignal/internal/resolution"
	"skysignal/internal/signal"
)

type fakeEngine struct {
	resolves     atomic.Int32
	leaderboards atomic.Int32
	fail         bool
}

func (f *fakeEngine) ResolvePending(context.Context) (resolution.Batch, error) {
	f.resolves.Add(1)
	if f.fail {
		return resolution.Batch{}, errors.New("db locked")
	}
	return resolution.Summarize([]resolution.Result{{Status: resolution.StatusResolved, SignalID: "s1"}}), nil
}

func (f *fakeEngine) Leaderboard(context.Context, string) ([]signal.UserStats, error) {
	f.leaderboards.Add(1)
	if f.fail {
		return nil, errors.New("db locked")
	}
	return []signal.UserStats{{Address: "0x1", WinCount: 1, TotalPredictions: 1, WinRate: 1, Tier: "Sage"}}, nil
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_FiresImmediatelyAndOnTicks(t *testing.T) {
	engine := &fakeEngine{}
	s := New(engine, config.ScheduleConfig{
		ResolveInterval:     config.Duration{Duration: 20 * time.Millisecond},
		LeaderboardInterval: config.Duration{Duration: time.Hour},
	})

	runFor(t, s, 150*time.Millisecond)

	assert.GreaterOrEqual(t, engine.resolves.Load(), int32(3))
	assert.Equal(t, int32(1), engine.leaderboards.Load())
}

func TestRun_SurvivesFailures(t *testing.T) {
	engine := &fakeEngine{fail: true}
	s := New(engine, config.ScheduleConfig{
		ResolveInterval:     config.Duration{Duration: 10 * time.Millisecond},
		LeaderboardInterval: config.Duration{Duration: 10 * time.Millisecond},
	})

	runFor(t, s, 100*time.Millisecond)

	assert.Greater(t, engine.resolves.Load(), int32(1))
	assert.Greater(t, engine.leaderboards.Load(), int32(1))
}

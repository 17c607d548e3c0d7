package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/metrics"
	"github.com/xenlix/aeoscan/internal/scan"
	memstore "github.com/xenlix/aeoscan/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestSweepDeletesExpiredAndFailsStuck(t *testing.T) {
	metrics.Init()
	ctx := context.Background()
	store := memstore.New()
	now := time.Now().UTC()

	require.NoError(t, store.CreateJob(ctx, scan.Job{
		ID: "expired", State: scan.StateFullReady,
		Created: now, Updated: now, ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.CreateJob(ctx, scan.Job{
		ID: "fresh", State: scan.StateQueued,
		Created: now, Updated: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.CreateJob(ctx, scan.Job{
		ID: "stuck", State: scan.StateQueued,
		Created: now, Updated: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.UpdateState(ctx, "stuck", scan.StateRunning, scan.StepCrawl, 5, ""))

	// Sweep from 30 minutes in the future: the stuck job's last update is
	// past the 10 minute watchdog deadline.
	r := New(Config{StuckAfter: 10 * time.Minute}, store, fixedClock{now: now.Add(30 * time.Minute)}, zap.NewNop())
	r.Sweep(ctx)

	_, err := store.GetJob(ctx, "expired")
	require.ErrorIs(t, err, scan.ErrNotFound)

	fresh, err := store.GetJob(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, scan.StateQueued, fresh.State)

	stuck, err := store.GetJob(ctx, "stuck")
	require.NoError(t, err)
	require.Equal(t, scan.StateErrorAnalyze, stuck.State)
	require.Equal(t, stuckErrText, stuck.ErrorText)
}

func TestSweepLeavesRecentRunningJobsAlone(t *testing.T) {
	metrics.Init()
	ctx := context.Background()
	store := memstore.New()
	now := time.Now().UTC()

	require.NoError(t, store.CreateJob(ctx, scan.Job{
		ID: "active", State: scan.StateQueued,
		Created: now, Updated: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.UpdateState(ctx, "active", scan.StateRunning, scan.StepCrawl, 5, ""))

	r := New(Config{}, store, fixedClock{now: now.Add(time.Minute)}, zap.NewNop())
	r.Sweep(ctx)

	job, err := store.GetJob(ctx, "active")
	require.NoError(t, err)
	require.Equal(t, scan.StateRunning, job.State)
}

func TestRunStopsOnCancel(t *testing.T) {
	metrics.Init()
	r := New(Config{Interval: 10 * time.Millisecond}, memstore.New(), fixedClock{now: time.Now().UTC()}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

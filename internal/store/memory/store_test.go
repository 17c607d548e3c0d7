package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xenlix/aeoscan/internal/scan"
)

func newJob(id string) scan.Job {
	now := time.Now().UTC()
	return scan.Job{
		ID:        id,
		URL:       "https://example.com/",
		State:     scan.StateQueued,
		Created:   now,
		Updated:   now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, newJob("a")))
	require.ErrorIs(t, s.CreateJob(ctx, newJob("a")), scan.ErrAlreadyExists)

	job, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scan.StateQueued, job.State)

	_, err = s.GetJob(ctx, "missing")
	require.ErrorIs(t, err, scan.ErrNotFound)
}

func TestProgressNeverDecreases(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))

	require.NoError(t, s.UpdateState(ctx, "a", scan.StateRunning, scan.StepParse, 45, ""))
	require.NoError(t, s.UpdateState(ctx, "a", scan.StateRunning, scan.StepCrawl, 5, ""))

	job, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 45, job.Progress)
	require.Equal(t, scan.StepCrawl, job.Step)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))

	require.NoError(t, s.UpdateState(ctx, "a", scan.StateFullReady, "", 100, ""))
	require.NoError(t, s.UpdateState(ctx, "a", scan.StateRunning, scan.StepCrawl, 5, ""))

	job, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scan.StateFullReady, job.State)
	require.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Finished)
}

func TestUpdateStateStampsStarted(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))

	require.NoError(t, s.UpdateState(ctx, "a", scan.StateRunning, scan.StepCrawl, 5, ""))
	job, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, job.Started)

	first := *job.Started
	require.NoError(t, s.UpdateState(ctx, "a", scan.StateRunning, scan.StepParse, 45, ""))
	job, err = s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, first, *job.Started)
}

func TestSavePayloads(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))

	require.NoError(t, s.SaveTeaser(ctx, "a", scan.TeaserPayload{Title: "t"}))
	require.NoError(t, s.SaveFull(ctx, "a", scan.FullPayload{AEOTotal: 80}))
	require.ErrorIs(t, s.SaveTeaser(ctx, "nope", scan.TeaserPayload{}), scan.ErrNotFound)

	job, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "t", job.Teaser.Title)
	require.Equal(t, 80, job.Full.AEOTotal)
}

func TestDeleteExpired(t *testing.T) {
	s := New()
	ctx := context.Background()

	fresh := newJob("fresh")
	stale := newJob("stale")
	stale.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.CreateJob(ctx, fresh))
	require.NoError(t, s.CreateJob(ctx, stale))

	n, err := s.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, s.Len())

	_, err = s.GetJob(ctx, "stale")
	require.ErrorIs(t, err, scan.ErrNotFound)
}

func TestFailStuck(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))
	require.NoError(t, s.UpdateState(ctx, "a", scan.StateRunning, scan.StepCrawl, 5, ""))

	// Not stuck yet.
	n, err := s.FailStuck(ctx, time.Now().UTC().Add(-time.Minute), "watchdog")
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.FailStuck(ctx, time.Now().UTC().Add(time.Minute), "watchdog")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scan.StateErrorAnalyze, job.State)
	require.Equal(t, "watchdog", job.ErrorText)
}

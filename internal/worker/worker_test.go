package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/metrics"
	"github.com/xenlix/aeoscan/internal/queue/memory"
	"github.com/xenlix/aeoscan/internal/scan"
)

type countingRunner struct {
	mu   sync.Mutex
	runs []string
	errs map[string]error
}

func (r *countingRunner) Run(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, jobID)
	return r.errs[jobID]
}

func (r *countingRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func TestWorkerProcessesQueueItems(t *testing.T) {
	t.Parallel()
	metrics.Init()

	q := memory.New(4)
	runner := &countingRunner{}
	w := New(q, runner, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, q.Enqueue(ctx, scan.QueueItem{JobID: "a"}))
	require.NoError(t, q.Enqueue(ctx, scan.QueueItem{JobID: "b"}))

	require.Eventually(t, func() bool {
		return len(runner.ran()) == 2
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"a", "b"}, runner.ran())
}

func TestWorkerContinuesAfterRunError(t *testing.T) {
	t.Parallel()
	metrics.Init()

	q := memory.New(4)
	runner := &countingRunner{errs: map[string]error{"bad": errors.New("boom")}}
	w := New(q, runner, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, q.Enqueue(ctx, scan.QueueItem{JobID: "bad"}))
	require.NoError(t, q.Enqueue(ctx, scan.QueueItem{JobID: "good"}))

	require.Eventually(t, func() bool {
		return len(runner.ran()) == 2
	}, time.Second, 10*time.Millisecond)
}

type gateRunner struct {
	release chan struct{}
}

func (r *gateRunner) Run(context.Context, string) error {
	<-r.release
	return nil
}

// TestWorkerReportsQueueDepth holds the runner on the first item and checks
// the backlog gauge reflects the one item still queued. Not parallel: the
// gauge is process-wide.
func TestWorkerReportsQueueDepth(t *testing.T) {
	metrics.Init()

	q := memory.New(4)
	release := make(chan struct{})
	w := New(q, &gateRunner{release: release}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Enqueue(ctx, scan.QueueItem{JobID: "a"}))
	require.NoError(t, q.Enqueue(ctx, scan.QueueItem{JobID: "b"}))
	go w.Run(ctx)

	expected := `
# HELP scan_queue_depth Number of scans waiting in the queue.
# TYPE scan_queue_depth gauge
scan_queue_depth 1
`
	require.Eventually(t, func() bool {
		return testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(expected), "scan_queue_depth") == nil
	}, time.Second, 10*time.Millisecond)
	close(release)
}

func TestWorkerStopsWhenQueueClosed(t *testing.T) {
	t.Parallel()
	metrics.Init()

	q := memory.New(1)
	w := New(q, &countingRunner{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()
	metrics.Init()

	q := memory.New(1)
	w := New(q, &countingRunner{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

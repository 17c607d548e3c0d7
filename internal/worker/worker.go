// Package worker implements the scan execution loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/metrics"
	"github.com/xenlix/aeoscan/internal/queue/memory"
	"github.com/xenlix/aeoscan/internal/scan"
)

// dequeueBackoff spaces out retries after a transient dequeue failure.
const dequeueBackoff = 250 * time.Millisecond

// depthReporter is implemented by queues that can report their backlog.
type depthReporter interface {
	Depth() int
}

// Runner executes one scan job. Implemented by pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Worker consumes queue items and runs the scan pipeline on each.
type Worker struct {
	queue    scan.Queue
	pipeline Runner
	logger   *zap.Logger
}

// New constructs a Worker.
func New(queue scan.Queue, p Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, pipeline: p, logger: logger}
}

// Run blocks, consuming queue items until the context finishes. Pipeline
// errors are logged, never fatal: the next item is always attempted.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, memory.ErrClosed) {
				w.logger.Info("queue closed, worker stopping")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}
		if q, ok := w.queue.(depthReporter); ok {
			metrics.SetQueueDepth(q.Depth())
		}
		w.logger.Debug("dequeued scan", zap.String("job_id", item.JobID))

		metrics.IncActiveWorkers()
		if err := w.pipeline.Run(ctx, item.JobID); err != nil {
			w.logger.Error("scan run failed",
				zap.String("job_id", item.JobID),
				zap.Int("attempt", item.Attempt),
				zap.Error(err))
		}
		metrics.DecActiveWorkers()
	}
}

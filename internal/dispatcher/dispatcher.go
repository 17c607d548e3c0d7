// Package dispatcher manages worker fan-out over the scan queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/xenlix/aeoscan/internal/metrics"
	"github.com/xenlix/aeoscan/internal/scan"
	"github.com/xenlix/aeoscan/internal/worker"
)

// depthReporter is implemented by queues that can report their backlog,
// such as the in-memory queue. Pub/Sub has no local depth.
type depthReporter interface {
	Depth() int
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   scan.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue scan.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item scan.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	if q, ok := d.queue.(depthReporter); ok {
		metrics.SetQueueDepth(q.Depth())
	}
	return nil
}

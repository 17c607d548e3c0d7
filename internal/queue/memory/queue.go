// Package memory provides a bounded in-memory queue for single-process
// deployments and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xenlix/aeoscan/internal/scan"
)

// ErrClosed is returned by Dequeue after Close drains the queue.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded channel-backed queue with context-aware operations.
type Queue struct {
	ch      chan scan.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan scan.QueueItem, capacity)}
}

// Enqueue pushes an item or returns when the context ends. A full queue
// blocks rather than dropping, so callers bound submission with a timeout.
func (q *Queue) Enqueue(ctx context.Context, item scan.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (scan.QueueItem, error) {
	select {
	case <-ctx.Done():
		return scan.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return scan.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Depth reports the number of buffered items.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. Safe to call twice.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

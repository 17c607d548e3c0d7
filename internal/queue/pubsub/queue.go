// Package pubsub adapts Google Cloud Pub/Sub to the scan.Queue interface
// so scan jobs survive process restarts and fan out across replicas.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/scan"
)

// Config identifies the topic and subscription used for scan jobs.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
}

// Queue publishes queue items to a topic and pulls them from a
// subscription. Receive runs in the background and feeds a channel so
// Dequeue keeps the same pull semantics as the in-memory queue.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	items     chan scan.QueueItem
	receiveMu sync.Mutex
	receiving bool
	cancelRx  context.CancelFunc
}

// New connects to Pub/Sub using Application Default Credentials and
// verifies the topic and subscription exist.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.TopicID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	sub := client.Subscription(cfg.SubscriptionID)
	ok, err = sub.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub subscription %q: %w", cfg.SubscriptionID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", cfg.SubscriptionID, cfg.ProjectID)
	}

	return NewWithClient(client, topic, sub, logger), nil
}

// NewWithClient builds a Queue over an existing client, topic, and
// subscription. Used by tests running against the pstest fake server.
func NewWithClient(client *pubsub.Client, topic *pubsub.Topic, sub *pubsub.Subscription, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		client: client,
		topic:  topic,
		sub:    sub,
		logger: logger,
		items:  make(chan scan.QueueItem, 64),
	}
}

// Enqueue publishes the item and waits for the server ack so a submitted
// scan is durably queued before the API responds.
func (q *Queue) Enqueue(ctx context.Context, item scan.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_id": item.JobID},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return nil
}

// Dequeue returns the next received item. The first call starts the
// background Receive loop.
func (q *Queue) Dequeue(ctx context.Context) (scan.QueueItem, error) {
	q.startReceiving()
	select {
	case <-ctx.Done():
		return scan.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.items:
		return item, nil
	}
}

func (q *Queue) startReceiving() {
	q.receiveMu.Lock()
	defer q.receiveMu.Unlock()
	if q.receiving {
		return
	}
	q.receiving = true

	rxCtx, cancel := context.WithCancel(context.Background())
	q.cancelRx = cancel
	go func() {
		err := q.sub.Receive(rxCtx, func(ctx context.Context, msg *pubsub.Message) {
			var item scan.QueueItem
			if err := json.Unmarshal(msg.Data, &item); err != nil {
				q.logger.Warn("dropping malformed queue message",
					zap.String("message_id", msg.ID), zap.Error(err))
				msg.Ack()
				return
			}
			select {
			case q.items <- item:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
			}
		})
		if err != nil && rxCtx.Err() == nil {
			q.logger.Error("pubsub receive loop exited", zap.Error(err))
		}
	}()
}

// Close stops the receive loop and the publisher.
func (q *Queue) Close() error {
	q.receiveMu.Lock()
	if q.cancelRx != nil {
		q.cancelRx()
	}
	q.receiveMu.Unlock()

	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

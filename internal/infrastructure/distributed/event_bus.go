package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hlsarchiver/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is a single pipeline lifecycle occurrence fanned out over Redis
// pub/sub, the same wire shape chunker.go feeds into Publish.
type Event struct {
	Type       string                 `json:"type"`
	InstanceID string                 `json:"instance_id"`
	Timestamp  time.Time              `json:"timestamp"`
	FeedID     domain.FeedID          `json:"feed_id"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// FeedEventBus implements ports.EventPublisher over Redis pub/sub, so that
// chunk lifecycle events reach any number of playlist-server instances
// running alongside the recorder.
type FeedEventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	channel    string
	publishTTL time.Duration
}

// NewFeedEventBus creates a new event bus. instanceID should be unique per
// recorder process so a subscriber can tell its own events apart from a
// peer's.
func NewFeedEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *FeedEventBus {
	return &FeedEventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channel:    "hlsarchiver:events",
		publishTTL: 5 * time.Second,
	}
}

// Publish fans out a chunk lifecycle event. It satisfies ports.EventPublisher:
// delivery is best-effort and failures are only logged, never returned, so
// that nothing on the pull loop's critical path can block on Redis being down.
func (eb *FeedEventBus) Publish(feedID domain.FeedID, event string, fields map[string]interface{}) {
	if eb.client == nil {
		return
	}

	e := Event{
		Type:       event,
		InstanceID: eb.instanceID,
		Timestamp:  time.Now(),
		FeedID:     feedID,
		Fields:     fields,
	}

	data, err := json.Marshal(e)
	if err != nil {
		eb.logWarn("failed to marshal event", err, feedID, event)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eb.publishTTL)
	defer cancel()

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		eb.logWarn("failed to publish event", err, feedID, event)
		return
	}

	if eb.logger != nil {
		eb.logger.Debugw("published event",
			"type", event,
			"feed_id", feedID,
		)
	}
}

func (eb *FeedEventBus) logWarn(msg string, err error, feedID domain.FeedID, event string) {
	if eb.logger == nil {
		return
	}
	eb.logger.Warnw(msg,
		"error", err,
		"feed_id", feedID,
		"type", event,
	)
}

// Subscribe listens for events published by other instances and invokes
// handler for each one, skipping events this instance itself published. It
// blocks until ctx is cancelled.
func (eb *FeedEventBus) Subscribe(ctx context.Context, handler func(*Event)) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("event bus subscription channel closed")
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				if eb.logger != nil {
					eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", msg.Payload)
				}
				continue
			}

			if event.InstanceID == eb.instanceID {
				continue
			}

			handler(&event)
		}
	}
}

// Close releases resources held by the event bus. Present for symmetry with
// the rest of the infrastructure layer; the bus itself holds nothing beyond
// the shared Redis client, which callers own and close independently.
func (eb *FeedEventBus) Close() error {
	return nil
}

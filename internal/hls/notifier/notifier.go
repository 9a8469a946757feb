// Package notifier implements the fire-and-forget, at-least-once chunk
// completion notifier described in spec.md §4.7: every payload is
// funnelled onto a strictly-ordered, concurrency-1 scheduler so
// deliveries land in chunk-completion order even though the pull loop
// never blocks waiting on one.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/internal/core/ports"
	"hlsarchiver/internal/hls/scheduler"
)

// DefaultRetrySleep is the pause between POST attempts after a failure.
const DefaultRetrySleep = 30 * time.Second

// DefaultMaxAttempts is the bounded retry budget per notification.
const DefaultMaxAttempts = 10

// Notifier POSTs chunk-completion payloads to a configured endpoint.
type Notifier struct {
	endpoint    string
	client      *http.Client
	scheduler   *scheduler.Scheduler
	retrySleep  time.Duration
	maxAttempts int
	log         *zap.Logger
	metrics     ports.MetricsRecorder
}

// New builds a Notifier targeting endpoint. Deliveries run one at a
// time (scheduler.New(1)) to preserve chunk-completion order. metrics may
// be nil.
func New(endpoint string, client *http.Client, log *zap.Logger, metrics ports.MetricsRecorder) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		endpoint:    endpoint,
		client:      client,
		scheduler:   scheduler.New(1),
		retrySleep:  DefaultRetrySleep,
		maxAttempts: DefaultMaxAttempts,
		log:         log,
		metrics:     metrics,
	}
}

// Notify submits n for delivery without blocking the caller. It stamps
// a fresh delivery id onto the payload so retries and downstream
// dedup can recognise a single logical attempt across transport
// retries.
func (n *Notifier) Notify(notification *domain.ChunkNotification) {
	notification.DeliveryID = uuid.NewString()
	n.scheduler.Submit(func(ctx context.Context) {
		n.deliver(ctx, notification)
	})
}

func (n *Notifier) deliver(ctx context.Context, notification *domain.ChunkNotification) {
	body, err := json.Marshal(notification.Payload())
	if err != nil {
		n.log.Error("failed to marshal chunk notification", zap.Error(err))
		return
	}

	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		status, err := n.post(ctx, body)
		success := err == nil && (status == http.StatusOK || status == http.StatusCreated)
		if n.metrics != nil {
			n.metrics.RecordNotifyAttempt(success)
		}
		if success {
			return
		}

		if err != nil {
			n.log.Warn("notifier delivery attempt failed",
				zap.String("delivery_id", notification.DeliveryID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else {
			n.log.Warn("notifier delivery got unexpected status",
				zap.String("delivery_id", notification.DeliveryID),
				zap.Int("attempt", attempt),
				zap.Int("status", status))
		}

		if attempt == n.maxAttempts {
			n.log.Error("notifier delivery abandoned after max attempts",
				zap.String("delivery_id", notification.DeliveryID),
				zap.Int("attempts", attempt))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(n.retrySleep):
		}
	}
}

func (n *Notifier) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Close waits for any in-flight or queued delivery to finish.
func (n *Notifier) Close() {
	n.scheduler.Wait(false)
}

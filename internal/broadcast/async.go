package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type queuedEvent struct {
	tenantID uuid.UUID
	topic    string
	payload  any
}

// AsyncBroadcaster decouples write paths from the transport: Publish
// enqueues and returns immediately, a single worker drains the queue, and
// events beyond the queue bound are dropped. Broadcast is a latency
// optimization, not the source of truth, so dropping under pressure is the
// documented behavior rather than blocking a settings write on Redis.
type AsyncBroadcaster struct {
	inner   Broadcaster
	queue   chan queuedEvent
	timeout time.Duration
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncBroadcaster wraps inner with a bounded queue of queueSize and a
// per-publish timeout, and starts the worker.
func NewAsyncBroadcaster(inner Broadcaster, queueSize int, timeout time.Duration) *AsyncBroadcaster {
	a := &AsyncBroadcaster{
		inner:   inner,
		queue:   make(chan queuedEvent, queueSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish enqueues the event and never blocks. The error return exists to
// satisfy Broadcaster; it is always nil because delivery is fire-and-forget.
func (a *AsyncBroadcaster) Publish(ctx context.Context, tenantID uuid.UUID, topic string, payload any) error {
	select {
	case a.queue <- queuedEvent{tenantID: tenantID, topic: topic, payload: payload}:
	default:
		dropped := a.dropped.Add(1)
		slog.Warn("broadcast queue full, event dropped",
			"tenant_id", tenantID, "topic", topic, "dropped_total", dropped)
	}
	return nil
}

// Dropped reports how many events were discarded because the queue was full.
func (a *AsyncBroadcaster) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and drains what is already queued.
func (a *AsyncBroadcaster) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
		<-a.done
	})
}

func (a *AsyncBroadcaster) run() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.inner.Publish(ctx, ev.tenantID, ev.topic, ev.payload); err != nil {
			// Swallowed by design: subscribers recover on their next pull.
			slog.Warn("broadcast publish failed",
				"tenant_id", ev.tenantID, "topic", ev.topic, "error", err)
		}
		cancel()
	}
}

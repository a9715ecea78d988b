package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// eventQueue hands security events to a single background worker. Enqueue
// never blocks; events are dropped and logged when the buffer is full.
type eventQueue struct {
	name    string
	ch      chan models.SecurityEvent
	handle  func(ctx context.Context, event models.SecurityEvent) error
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newEventQueue(name string, size int, timeout time.Duration, handle func(ctx context.Context, event models.SecurityEvent) error, logger *slog.Logger) *eventQueue {
	if size <= 0 {
		size = 1
	}
	q := &eventQueue{
		name:    name,
		ch:      make(chan models.SecurityEvent, size),
		handle:  handle,
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) enqueue(event models.SecurityEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.ch <- event:
		return true
	default:
		q.logger.Warn("event queue full, dropping event",
			slog.String("queue", q.name),
			slog.Uint64("event_id", event.ID),
			slog.String("event_type", string(event.Type)))
		return false
	}
}

func (q *eventQueue) run() {
	defer close(q.done)

	for event := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.handle(ctx, event); err != nil {
			q.logger.Error("failed to process security event",
				slog.String("queue", q.name),
				slog.Uint64("event_id", event.ID),
				slog.Any("error", err))
		}
		cancel()
	}
}

// close stops accepting events and waits for the buffered ones to drain
func (q *eventQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

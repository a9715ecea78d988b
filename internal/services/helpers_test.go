package services_test

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingEvents is an EventRecorder that keeps what it was given
type recordingEvents struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (r *recordingEvents) AddSecurityEvent(eventType models.EventType, data models.EventData) models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := models.SecurityEvent{
		ID:       uint64(len(r.events) + 1),
		Type:     eventType,
		Data:     data,
		Severity: models.SeverityFor(eventType),
	}
	r.events = append(r.events, event)
	return event
}

func (r *recordingEvents) count(eventType models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func countType(events []models.SecurityEvent, eventType models.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func testRateLimitConfig() models.RateLimitConfig {
	return models.RateLimitConfig{
		MaxAttempts:      3,
		Window:           15 * time.Minute,
		LockoutDuration:  30 * time.Minute,
		ProgressiveDelay: true,
		MaxDelay:         5 * time.Second,
		DelayStep:        2 * time.Second,
	}
}

package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// Caps and windows of the in-memory security event log
const (
	MaxSecurityEvents           = 200
	MaxFailedLogins             = 100
	MaxSuspiciousFlags          = 50
	SuspiciousActivityThreshold = 5
	SuspiciousActivityWindow    = time.Hour
	RecentFailureWindow         = time.Hour
	EventRetention              = 24 * time.Hour
)

// EventRecorder appends security events. RateLimitService and
// SessionActivityTracker emit through it.
type EventRecorder interface {
	AddSecurityEvent(eventType models.EventType, data models.EventData) models.SecurityEvent
}

// EventSubscriber is called once per appended event, after the log lock is released
type EventSubscriber func(event models.SecurityEvent)

// SecurityEventService is the capped, append-only security event log together
// with the failed-login history and the suspicious activity flags derived from it.
type SecurityEventService struct {
	mu           sync.RWMutex
	events       []models.SecurityEvent
	failedLogins []models.FailedLoginRecord
	flags        []models.SuspiciousActivityFlag
	nextID       uint64
	detection    bool
	subscribers  []EventSubscriber
	logger       *slog.Logger
	now          func() time.Time
}

// NewSecurityEventService creates an empty event log
func NewSecurityEventService(detection bool, logger *slog.Logger) *SecurityEventService {
	return &SecurityEventService{
		events:       make([]models.SecurityEvent, 0, MaxSecurityEvents),
		failedLogins: make([]models.FailedLoginRecord, 0, MaxFailedLogins),
		flags:        make([]models.SuspiciousActivityFlag, 0, MaxSuspiciousFlags),
		detection:    detection,
		logger:       logger,
		now:          time.Now,
	}
}

// SetClock replaces the time source. Call before the service is shared.
func (s *SecurityEventService) SetClock(now func() time.Time) {
	s.now = now
}

// Subscribe registers fn to receive every future event
func (s *SecurityEventService) Subscribe(fn EventSubscriber) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// SetDetectionEnabled toggles suspicious pattern detection
func (s *SecurityEventService) SetDetectionEnabled(enabled bool) {
	s.mu.Lock()
	s.detection = enabled
	s.mu.Unlock()
}

// AddSecurityEvent appends an event and runs pattern detection. It never
// rejects an event. The returned value is the appended event.
func (s *SecurityEventService) AddSecurityEvent(eventType models.EventType, data models.EventData) models.SecurityEvent {
	s.mu.Lock()
	now := s.now()
	event := s.appendLocked(eventType, data, now)
	emitted := []models.SecurityEvent{event}

	if s.detection {
		if derived, ok := s.detectLocked(eventType, now); ok {
			emitted = append(emitted, derived)
		}
	}
	subscribers := s.subscribers
	s.mu.Unlock()

	for _, e := range emitted {
		for _, fn := range subscribers {
			fn(e)
		}
	}
	return event
}

// appendLocked must be called with s.mu held
func (s *SecurityEventService) appendLocked(eventType models.EventType, data models.EventData, now time.Time) models.SecurityEvent {
	s.nextID++
	event := models.SecurityEvent{
		ID:        s.nextID,
		Type:      eventType,
		Timestamp: now,
		Data:      data.Clone(),
		Severity:  models.SeverityFor(eventType),
	}
	s.events = append(s.events, event)
	if over := len(s.events) - MaxSecurityEvents; over > 0 {
		n := copy(s.events, s.events[over:])
		s.events = s.events[:n]
	}

	event.Data = event.Data.Clone()
	return event
}

// detectLocked raises at most one flag per event type per trailing window.
// The derived SUSPICIOUS_ACTIVITY event is appended without being evaluated.
func (s *SecurityEventService) detectLocked(eventType models.EventType, now time.Time) (models.SecurityEvent, bool) {
	count := 0
	for i := range s.events {
		if s.events[i].Type == eventType && within(now, s.events[i].Timestamp, SuspiciousActivityWindow) {
			count++
		}
	}
	if count < SuspiciousActivityThreshold {
		return models.SecurityEvent{}, false
	}

	for i := range s.flags {
		if s.flags[i].Pattern == eventType && within(now, s.flags[i].Timestamp, SuspiciousActivityWindow) {
			return models.SecurityEvent{}, false
		}
	}

	s.flags = append(s.flags, models.SuspiciousActivityFlag{
		Type:      models.FlagTypePatternDetected,
		Pattern:   eventType,
		Count:     count,
		Timestamp: now,
		Severity:  models.SeverityFor(models.EventSuspiciousActivity),
	})
	if over := len(s.flags) - MaxSuspiciousFlags; over > 0 {
		n := copy(s.flags, s.flags[over:])
		s.flags = s.flags[:n]
	}

	s.logger.Warn("suspicious activity pattern detected",
		slog.String("pattern", string(eventType)),
		slog.Int("count", count))

	derived := s.appendLocked(models.EventSuspiciousActivity, models.EventData{
		"pattern": string(eventType),
		"count":   count,
	}, now)
	return derived, true
}

// RecordFailedLogin appends to the failed-login history and returns how many
// failures the identifier has within the trailing hour, this one included.
func (s *SecurityEventService) RecordFailedLogin(identifier, reason, context string) int {
	if reason == "" {
		reason = models.FailedLoginReasonInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.failedLogins = append(s.failedLogins, models.FailedLoginRecord{
		Identifier: identifier,
		Timestamp:  now,
		Reason:     reason,
		Context:    context,
	})
	if over := len(s.failedLogins) - MaxFailedLogins; over > 0 {
		n := copy(s.failedLogins, s.failedLogins[over:])
		s.failedLogins = s.failedLogins[:n]
	}

	recent := 0
	for i := range s.failedLogins {
		if s.failedLogins[i].Identifier == identifier && within(now, s.failedLogins[i].Timestamp, RecentFailureWindow) {
			recent++
		}
	}
	return recent
}

// Events returns the retained events, oldest first
func (s *SecurityEventService) Events() []models.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SecurityEvent, len(s.events))
	for i, e := range s.events {
		e.Data = e.Data.Clone()
		out[i] = e
	}
	return out
}

// FailedLogins returns the retained failed-login history, oldest first
func (s *SecurityEventService) FailedLogins() []models.FailedLoginRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FailedLoginRecord, len(s.failedLogins))
	copy(out, s.failedLogins)
	return out
}

// SuspiciousActivity returns the retained flags, oldest first
func (s *SecurityEventService) SuspiciousActivity() []models.SuspiciousActivityFlag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SuspiciousActivityFlag, len(s.flags))
	copy(out, s.flags)
	return out
}

// RecentFailures counts failed logins inside the trailing hour
func (s *SecurityEventService) RecentFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	n := 0
	for i := range s.failedLogins {
		if within(now, s.failedLogins[i].Timestamp, RecentFailureWindow) {
			n++
		}
	}
	return n
}

// Counts returns the sizes of the three lists in one consistent read
func (s *SecurityEventService) Counts() (events, failedLogins, flags int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events), len(s.failedLogins), len(s.flags)
}

// Clear empties events, failed logins and flags together
func (s *SecurityEventService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = s.events[:0]
	s.failedLogins = s.failedLogins[:0]
	s.flags = s.flags[:0]
}

// Prune drops entries older than EventRetention from every list and returns
// how many were removed.
func (s *SecurityEventService) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	kept := s.events[:0]
	for _, e := range s.events {
		if within(now, e.Timestamp, EventRetention) {
			kept = append(kept, e)
		}
	}
	removed += len(s.events) - len(kept)
	s.events = kept

	keptFailures := s.failedLogins[:0]
	for _, f := range s.failedLogins {
		if within(now, f.Timestamp, EventRetention) {
			keptFailures = append(keptFailures, f)
		}
	}
	removed += len(s.failedLogins) - len(keptFailures)
	s.failedLogins = keptFailures

	keptFlags := s.flags[:0]
	for _, f := range s.flags {
		if within(now, f.Timestamp, EventRetention) {
			keptFlags = append(keptFlags, f)
		}
	}
	removed += len(s.flags) - len(keptFlags)
	s.flags = keptFlags

	return removed
}

// within reports whether ts falls inside the trailing window ending at now.
// Timestamps ahead of now count as age zero.
func within(now, ts time.Time, window time.Duration) bool {
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	return age < window
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// EventType is the fixed vocabulary of security events
type EventType string

const (
	EventAccountLocked        EventType = "ACCOUNT_LOCKED"
	EventAccountUnlocked      EventType = "ACCOUNT_UNLOCKED"
	EventMultipleFailedLogins EventType = "MULTIPLE_FAILED_LOGINS"
	EventSuspiciousActivity   EventType = "SUSPICIOUS_ACTIVITY"
	EventSessionExpired       EventType = "SESSION_EXPIRED"
	EventCSRFAttempt          EventType = "CSRF_ATTEMPT"
	EventRateLimitExceeded    EventType = "RATE_LIMIT_EXCEEDED"
)

// Severity of a security event
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var eventSeverities = map[EventType]Severity{
	EventAccountLocked:        SeverityHigh,
	EventAccountUnlocked:      SeverityLow,
	EventMultipleFailedLogins: SeverityHigh,
	EventSuspiciousActivity:   SeverityMedium,
	EventSessionExpired:       SeverityLow,
	EventCSRFAttempt:          SeverityHigh,
	EventRateLimitExceeded:    SeverityMedium,
}

// SeverityFor maps an event type to its fixed severity. Unknown types are low.
func SeverityFor(t EventType) Severity {
	if s, ok := eventSeverities[t]; ok {
		return s
	}
	return SeverityLow
}

// SecurityEvent is an immutable entry of the security event log
type SecurityEvent struct {
	ID        uint64    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data,omitempty"`
	Severity  Severity  `json:"severity"`
}

// FlagTypePatternDetected is the only kind of suspicious activity flag
const FlagTypePatternDetected = "PATTERN_DETECTED"

// SuspiciousActivityFlag is raised when one event type repeats too often in the trailing window
type SuspiciousActivityFlag struct {
	Type      string    `json:"type"`
	Pattern   EventType `json:"pattern"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
}

// EventData holds the free-form payload of a security event
type EventData map[string]interface{}

// Clone returns a shallow copy so callers cannot mutate a logged event.
func (ed EventData) Clone() EventData {
	if ed == nil {
		return nil
	}
	out := make(EventData, len(ed))
	for k, v := range ed {
		out[k] = v
	}
	return out
}

// Scan implements sql.Scanner for JSONB
func (ed *EventData) Scan(value interface{}) error {
	if value == nil {
		*ed = make(EventData)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*ed = EventData(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (ed EventData) Value() (driver.Value, error) {
	if ed == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(ed))
}

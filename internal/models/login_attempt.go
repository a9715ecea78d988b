package models

import "time"

// LockReason explains why an identifier was locked
type LockReason string

const (
	LockReasonTooManyAttempts LockReason = "TOO_MANY_ATTEMPTS"
)

// DenyReason is reported on a rate limit decision that did not allow the attempt
type DenyReason string

const (
	DenyReasonLocked DenyReason = "LOCKED"
)

// AttemptRecord counts failed attempts for one identifier inside the current window
type AttemptRecord struct {
	Identifier  string     `json:"identifier"`
	Count       int        `json:"count"`
	WindowStart time.Time  `json:"window_start"`
	LastAttempt time.Time  `json:"last_attempt"`
	Locked      bool       `json:"locked"`
	LockUntil   *time.Time `json:"lock_until,omitempty"`
}

// WindowExpired reports whether the counting window has elapsed at now.
func (r *AttemptRecord) WindowExpired(now time.Time, window time.Duration) bool {
	return !now.Before(r.WindowStart.Add(window))
}

// LockEntry is a timed deny-all state for an identifier
type LockEntry struct {
	Identifier string        `json:"identifier"`
	Until      time.Time     `json:"until"`
	Reason     LockReason    `json:"reason"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Active reports whether the lock still denies at now. A lock whose until
// equals now has lapsed.
func (l *LockEntry) Active(now time.Time) bool {
	return now.Before(l.Until)
}

// RateLimitDecision is the outcome of a rate limit check. It is a value, never an error.
type RateLimitDecision struct {
	Allowed           bool           `json:"allowed"`
	RemainingAttempts int            `json:"remaining_attempts"`
	FailedAttempts    int            `json:"failed_attempts"`
	Reason            *DenyReason    `json:"reason,omitempty"`
	ResetTime         *time.Time     `json:"reset_time,omitempty"`
	LockoutDuration   *time.Duration `json:"lockout_duration,omitempty"`
	RetryDelay        time.Duration  `json:"retry_delay"`
}

// FailedLoginReasonInvalidCredentials is the default failed-login reason
const FailedLoginReasonInvalidCredentials = "INVALID_CREDENTIALS"

// FailedLoginRecord is the human-auditable history of a failed login
type FailedLoginRecord struct {
	Identifier string    `json:"identifier"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
	Context    string    `json:"context,omitempty"`
}

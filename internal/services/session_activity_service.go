package services

import (
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// Session expiry reasons reported in SESSION_EXPIRED events
const (
	SessionExpiryIdle        = "idle_timeout"
	SessionExpiryMaxDuration = "max_duration"
)

// SessionActivityTracker tracks the idle timeout of one session. Expiry is
// computed lazily on every check; SESSION_EXPIRED is emitted only on the
// transition from active to expired.
type SessionActivityTracker struct {
	mu           sync.Mutex
	sessionID    string
	startedAt    time.Time
	lastActivity time.Time
	timeout      time.Duration
	maxDuration  time.Duration
	expired      bool
	events       EventRecorder
	now          func() time.Time
}

// NewSessionActivityTracker starts tracking sessionID at now. A zero
// maxDuration disables the absolute age cap.
func NewSessionActivityTracker(sessionID string, timeout, maxDuration time.Duration, events EventRecorder, now func() time.Time) *SessionActivityTracker {
	if now == nil {
		now = time.Now
	}
	started := now()
	return &SessionActivityTracker{
		sessionID:    sessionID,
		startedAt:    started,
		lastActivity: started,
		timeout:      timeout,
		maxDuration:  maxDuration,
		events:       events,
		now:          now,
	}
}

// Touch records activity and clears the expired flag. A session past its
// maximum duration cannot be revived; Touch reports false for it.
func (t *SessionActivityTracker) Touch() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.lastActivity = now
	if t.overAgeLocked(now) {
		return false
	}
	t.expired = false
	return true
}

// UpdateActivity is Touch
func (t *SessionActivityTracker) UpdateActivity() bool {
	return t.Touch()
}

// ExtendSession renews the session. It has the same effect as Touch.
func (t *SessionActivityTracker) ExtendSession() bool {
	return t.Touch()
}

// CheckSessionExpiry reports whether the session is expired, emitting
// SESSION_EXPIRED the first time it is found expired.
func (t *SessionActivityTracker) CheckSessionExpiry() bool {
	t.mu.Lock()
	now := t.now()
	reason, expired := t.expiryLocked(now)
	transitioned := expired && !t.expired
	if expired {
		t.expired = true
	}
	result := t.expired
	idle := clampAge(now, t.lastActivity)
	t.mu.Unlock()

	if transitioned && t.events != nil {
		t.events.AddSecurityEvent(models.EventSessionExpired, models.EventData{
			"session_id": t.sessionID,
			"reason":     reason,
			"idle":       idle.String(),
		})
	}
	return result
}

// Expired reports the expiry state at now without recording a transition
func (t *SessionActivityTracker) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, expired := t.expiryLocked(t.now())
	return expired || t.expired
}

// PastMaxDuration reports whether the session has outlived its absolute age cap
func (t *SessionActivityTracker) PastMaxDuration() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overAgeLocked(t.now())
}

// Snapshot returns the current state of the session
func (t *SessionActivityTracker) Snapshot() models.SessionActivity {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, expired := t.expiryLocked(t.now())
	return models.SessionActivity{
		SessionID:    t.sessionID,
		StartedAt:    t.startedAt,
		LastActivity: t.lastActivity,
		Timeout:      t.timeout,
		Expired:      expired || t.expired,
	}
}

// LastActivity returns the time of the most recent touch
func (t *SessionActivityTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// SetLimits applies new idle and absolute limits to a live session
func (t *SessionActivityTracker) SetLimits(timeout, maxDuration time.Duration) {
	t.mu.Lock()
	t.timeout = timeout
	t.maxDuration = maxDuration
	t.mu.Unlock()
}

// expiryLocked must be called with t.mu held
func (t *SessionActivityTracker) expiryLocked(now time.Time) (string, bool) {
	if t.overAgeLocked(now) {
		return SessionExpiryMaxDuration, true
	}
	if clampAge(now, t.lastActivity) > t.timeout {
		return SessionExpiryIdle, true
	}
	return "", false
}

func (t *SessionActivityTracker) overAgeLocked(now time.Time) bool {
	return t.maxDuration > 0 && clampAge(now, t.startedAt) > t.maxDuration
}

func clampAge(now, since time.Time) time.Duration {
	if age := now.Sub(since); age > 0 {
		return age
	}
	return 0
}

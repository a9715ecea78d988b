package models

import "time"

// SecurityStatus is the monitoring snapshot consumed by the admin panel
type SecurityStatus struct {
	ActiveLocks        int        `json:"active_locks"`
	RecentFailures     int        `json:"recent_failures"`
	SecurityEvents     int        `json:"security_events"`
	SuspiciousActivity int        `json:"suspicious_activity"`
	IsSessionExpired   bool       `json:"is_session_expired"`
	LastActivity       *time.Time `json:"last_activity,omitempty"`
}

// SessionActivity is the idle-timeout state of one session
type SessionActivity struct {
	SessionID    string        `json:"session_id"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	Timeout      time.Duration `json:"timeout"`
	Expired      bool          `json:"expired"`
}

package models

import "time"

// CSRFFailureReason explains why a CSRF token did not validate
type CSRFFailureReason string

const (
	CSRFReasonNotFound        CSRFFailureReason = "NOT_FOUND"
	CSRFReasonExpired         CSRFFailureReason = "EXPIRED"
	CSRFReasonAlreadyUsed     CSRFFailureReason = "ALREADY_USED"
	CSRFReasonSessionMismatch CSRFFailureReason = "SESSION_MISMATCH"
)

// CSRFToken is a single-use, session-bound, time-limited form token
type CSRFToken struct {
	Value     string    `json:"-"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

// Expired reports whether the token is past its expiry at now.
func (t *CSRFToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// CSRFValidation is the outcome of validating a token
type CSRFValidation struct {
	Valid  bool               `json:"valid"`
	Reason *CSRFFailureReason `json:"reason,omitempty"`
}

// CSRFStats is a read-only summary of the token store
type CSRFStats struct {
	ActiveTokens int `json:"active_tokens"`
	TotalTokens  int `json:"total_tokens"`
	UsedTokens   int `json:"used_tokens"`
	SessionCount int `json:"session_count"`
}

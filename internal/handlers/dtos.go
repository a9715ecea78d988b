package handlers

import (
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// IdentifierRequest names the identifier a login is scoped to
type IdentifierRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
}

// LoginFailureRequest reports a failed credential check
type LoginFailureRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	Reason     string `json:"reason" validate:"omitempty,max=64"`
	Context    string `json:"context" validate:"omitempty,max=256"`
}

// CSRFValidateRequest carries a token to check without spending it
type CSRFValidateRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// PasswordCheckRequest carries a candidate password
type PasswordCheckRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

// PasswordCheckResponse reports whether the password meets policy
type PasswordCheckResponse struct {
	Valid bool `json:"valid"`
}

// RateLimitDecisionResponse is the wire form of a rate limit decision
type RateLimitDecisionResponse struct {
	Allowed           bool               `json:"allowed"`
	RemainingAttempts int                `json:"remaining_attempts"`
	FailedAttempts    int                `json:"failed_attempts"`
	Reason            *models.DenyReason `json:"reason,omitempty"`
	ResetTime         *time.Time         `json:"reset_time,omitempty"`
	LockoutDurationMs *int64             `json:"lockout_duration_ms,omitempty"`
	RetryDelayMs      int64              `json:"retry_delay_ms"`
}

func newDecisionResponse(d models.RateLimitDecision) RateLimitDecisionResponse {
	resp := RateLimitDecisionResponse{
		Allowed:           d.Allowed,
		RemainingAttempts: d.RemainingAttempts,
		FailedAttempts:    d.FailedAttempts,
		Reason:            d.Reason,
		ResetTime:         d.ResetTime,
		RetryDelayMs:      d.RetryDelay.Milliseconds(),
	}
	if d.LockoutDuration != nil {
		ms := d.LockoutDuration.Milliseconds()
		resp.LockoutDurationMs = &ms
	}
	return resp
}

// CSRFTokenResponse is returned when a token is issued
type CSRFTokenResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStatusResponse describes a session's idle state
type SessionStatusResponse struct {
	SessionID    string     `json:"session_id"`
	Expired      bool       `json:"expired"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	TimeoutMs    int64      `json:"timeout_ms,omitempty"`
}

func newSessionStatus(activity models.SessionActivity) SessionStatusResponse {
	started := activity.StartedAt
	last := activity.LastActivity
	return SessionStatusResponse{
		SessionID:    activity.SessionID,
		Expired:      activity.Expired,
		StartedAt:    &started,
		LastActivity: &last,
		TimeoutMs:    activity.Timeout.Milliseconds(),
	}
}

// UnlockResponse reports the outcome of an admin unlock
type UnlockResponse struct {
	Identifier string `json:"identifier"`
	WasLocked  bool   `json:"was_locked"`
}

// ClearedResponse reports how many entries an admin clear removed
type ClearedResponse struct {
	Removed int `json:"removed"`
}

// SecuritySettingsPayload is the wire form of the security toggles. Durations
// use Go duration syntax, e.g. "30m".
type SecuritySettingsPayload struct {
	EnableRateLimiting                bool   `json:"enable_rate_limiting"`
	EnableSessionTimeout              bool   `json:"enable_session_timeout"`
	EnableCSRFProtection              bool   `json:"enable_csrf_protection"`
	EnableSuspiciousActivityDetection bool   `json:"enable_suspicious_activity_detection"`
	MaxSessionDuration                string `json:"max_session_duration" validate:"required"`
	ActivityTimeout                   string `json:"activity_timeout" validate:"required"`
	RequireStrongPasswords            bool   `json:"require_strong_passwords"`
	EnableTwoFactor                   bool   `json:"enable_two_factor"`
}

func newSettingsPayload(s models.SecuritySettings) SecuritySettingsPayload {
	return SecuritySettingsPayload{
		EnableRateLimiting:                s.EnableRateLimiting,
		EnableSessionTimeout:              s.EnableSessionTimeout,
		EnableCSRFProtection:              s.EnableCSRFProtection,
		EnableSuspiciousActivityDetection: s.EnableSuspiciousActivityDetection,
		MaxSessionDuration:                s.MaxSessionDuration.String(),
		ActivityTimeout:                   s.ActivityTimeout.String(),
		RequireStrongPasswords:            s.RequireStrongPasswords,
		EnableTwoFactor:                   s.EnableTwoFactor,
	}
}

func (p SecuritySettingsPayload) toModel() (models.SecuritySettings, error) {
	maxSession, err := parseDuration("max_session_duration", p.MaxSessionDuration)
	if err != nil {
		return models.SecuritySettings{}, err
	}
	activity, err := parseDuration("activity_timeout", p.ActivityTimeout)
	if err != nil {
		return models.SecuritySettings{}, err
	}

	return models.SecuritySettings{
		EnableRateLimiting:                p.EnableRateLimiting,
		EnableSessionTimeout:              p.EnableSessionTimeout,
		EnableCSRFProtection:              p.EnableCSRFProtection,
		EnableSuspiciousActivityDetection: p.EnableSuspiciousActivityDetection,
		MaxSessionDuration:                maxSession,
		ActivityTimeout:                   activity,
		RequireStrongPasswords:            p.RequireStrongPasswords,
		EnableTwoFactor:                   p.EnableTwoFactor,
	}, nil
}

// RateLimitConfigPayload is the wire form of the throttling policy
type RateLimitConfigPayload struct {
	MaxAttempts      int    `json:"max_attempts" validate:"gt=0"`
	Window           string `json:"window" validate:"required"`
	LockoutDuration  string `json:"lockout_duration" validate:"required"`
	ProgressiveDelay bool   `json:"progressive_delay"`
	MaxDelay         string `json:"max_delay"`
	DelayStep        string `json:"delay_step"`
}

func newRateLimitPayload(c models.RateLimitConfig) RateLimitConfigPayload {
	return RateLimitConfigPayload{
		MaxAttempts:      c.MaxAttempts,
		Window:           c.Window.String(),
		LockoutDuration:  c.LockoutDuration.String(),
		ProgressiveDelay: c.ProgressiveDelay,
		MaxDelay:         c.MaxDelay.String(),
		DelayStep:        c.DelayStep.String(),
	}
}

// toModel applies the payload over base. Omitted delay fields keep their
// values from base.
func (p RateLimitConfigPayload) toModel(base models.RateLimitConfig) (models.RateLimitConfig, error) {
	cfg := base
	cfg.MaxAttempts = p.MaxAttempts
	cfg.ProgressiveDelay = p.ProgressiveDelay

	var err error
	if cfg.Window, err = parseDuration("window", p.Window); err != nil {
		return cfg, err
	}
	if cfg.LockoutDuration, err = parseDuration("lockout_duration", p.LockoutDuration); err != nil {
		return cfg, err
	}
	if p.MaxDelay != "" {
		if cfg.MaxDelay, err = parseDuration("max_delay", p.MaxDelay); err != nil {
			return cfg, err
		}
	}
	if p.DelayStep != "" {
		if cfg.DelayStep, err = parseDuration("delay_step", p.DelayStep); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: invalid duration %q", models.ErrBadRequest, field, raw)
	}
	return d, nil
}

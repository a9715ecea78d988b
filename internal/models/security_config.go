package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default policy values used when nothing overrides them
const (
	DefaultMaxAttempts        = 5
	DefaultWindow             = 15 * time.Minute
	DefaultLockoutDuration    = 30 * time.Minute
	DefaultMaxDelay           = 30 * time.Second
	DefaultDelayStep          = 1 * time.Second
	DefaultMaxSessionDuration = 8 * time.Hour
	DefaultActivityTimeout    = 30 * time.Minute
	DefaultCSRFTokenTTL       = 1 * time.Hour
)

var configValidator = validator.New()

// RateLimitConfig controls login throttling per identifier
type RateLimitConfig struct {
	MaxAttempts      int           `json:"max_attempts" yaml:"max_attempts" validate:"gt=0"`
	Window           time.Duration `json:"window" yaml:"window" validate:"gt=0"`
	LockoutDuration  time.Duration `json:"lockout_duration" yaml:"lockout_duration" validate:"gt=0"`
	ProgressiveDelay bool          `json:"progressive_delay" yaml:"progressive_delay"`
	MaxDelay         time.Duration `json:"max_delay" yaml:"max_delay" validate:"gte=0"`
	DelayStep        time.Duration `json:"delay_step" yaml:"delay_step" validate:"gte=0"`
}

// DefaultRateLimitConfig returns the stock throttling policy
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:      DefaultMaxAttempts,
		Window:           DefaultWindow,
		LockoutDuration:  DefaultLockoutDuration,
		ProgressiveDelay: true,
		MaxDelay:         DefaultMaxDelay,
		DelayStep:        DefaultDelayStep,
	}
}

// Validate rejects configurations that would make the limiter misbehave
func (c RateLimitConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: rate limit: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SecuritySettings are the feature toggles of the security layer
type SecuritySettings struct {
	EnableRateLimiting                bool          `json:"enable_rate_limiting" yaml:"enable_rate_limiting"`
	EnableSessionTimeout              bool          `json:"enable_session_timeout" yaml:"enable_session_timeout"`
	EnableCSRFProtection              bool          `json:"enable_csrf_protection" yaml:"enable_csrf_protection"`
	EnableSuspiciousActivityDetection bool          `json:"enable_suspicious_activity_detection" yaml:"enable_suspicious_activity_detection"`
	MaxSessionDuration                time.Duration `json:"max_session_duration" yaml:"max_session_duration" validate:"gte=0"`
	ActivityTimeout                   time.Duration `json:"activity_timeout" yaml:"activity_timeout" validate:"gt=0"`
	RequireStrongPasswords            bool          `json:"require_strong_passwords" yaml:"require_strong_passwords"`
	EnableTwoFactor                   bool          `json:"enable_two_factor" yaml:"enable_two_factor"`
}

// DefaultSecuritySettings enables every protection except two-factor
func DefaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		EnableRateLimiting:                true,
		EnableSessionTimeout:              true,
		EnableCSRFProtection:              true,
		EnableSuspiciousActivityDetection: true,
		MaxSessionDuration:                DefaultMaxSessionDuration,
		ActivityTimeout:                   DefaultActivityTimeout,
		RequireStrongPasswords:            true,
		EnableTwoFactor:                   false,
	}
}

// Validate rejects settings that cannot be enforced
func (s SecuritySettings) Validate() error {
	if err := configValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: settings: %v", ErrInvalidConfig, err)
	}
	return nil
}

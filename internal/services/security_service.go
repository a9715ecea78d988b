package services

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// MultipleFailedLoginsThreshold is the number of failures of one identifier
// inside the trailing hour that raises MULTIPLE_FAILED_LOGINS
const MultipleFailedLoginsThreshold = 3

// CleanupResult reports what one Cleanup sweep removed
type CleanupResult struct {
	ExpiredCSRFTokens int `json:"expired_csrf_tokens"`
	PrunedEntries     int `json:"pruned_entries"`
	ClearedLimits     int `json:"cleared_limits"`
	ExpiredSessions   int `json:"expired_sessions"`
}

// SecurityService is the single entry point to the security bookkeeping:
// rate limiting, CSRF tokens, the event log and session activity. Every
// subsystem is gated by its toggle in SecuritySettings.
type SecurityService struct {
	mu              sync.RWMutex
	rateLimitConfig models.RateLimitConfig
	settings        models.SecuritySettings

	rateLimiter *RateLimitService
	csrf        *auth.CSRFTokenManager
	events      *SecurityEventService

	sessionsMu sync.Mutex
	sessions   map[string]*SessionActivityTracker
	ended      map[string]time.Time

	logger *slog.Logger
	now    func() time.Time
}

// NewSecurityService builds the security layer. Invalid configuration is
// rejected here rather than discovered at request time.
func NewSecurityService(rateLimitConfig models.RateLimitConfig, settings models.SecuritySettings, csrf *auth.CSRFTokenManager, logger *slog.Logger) (*SecurityService, error) {
	if err := rateLimitConfig.Validate(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if csrf == nil {
		return nil, fmt.Errorf("%w: csrf token manager is required", models.ErrInvalidConfig)
	}

	events := NewSecurityEventService(settings.EnableSuspiciousActivityDetection, logger)
	return &SecurityService{
		rateLimitConfig: rateLimitConfig,
		settings:        settings,
		rateLimiter:     NewRateLimitService(repositories.NewAttemptStore(), events, logger),
		csrf:            csrf,
		events:          events,
		sessions:        make(map[string]*SessionActivityTracker),
		ended:           make(map[string]time.Time),
		logger:          logger,
		now:             time.Now,
	}, nil
}

// SetClock replaces the time source of every subsystem. Call before the
// service is shared.
func (s *SecurityService) SetClock(now func() time.Time) {
	s.now = now
	s.rateLimiter.SetClock(now)
	s.events.SetClock(now)
	s.csrf.SetClock(now)
}

// Subscribe registers fn to receive every security event
func (s *SecurityService) Subscribe(fn EventSubscriber) {
	s.events.Subscribe(fn)
}

// AuditSubscriber writes every event to the audit log
func AuditSubscriber(al *pkglogger.AuditLogger) EventSubscriber {
	return func(event models.SecurityEvent) {
		al.LogSecurityEvent(pkglogger.SecurityAuditEvent{
			ID:        event.ID,
			EventType: string(event.Type),
			Severity:  string(event.Severity),
			Timestamp: event.Timestamp,
			Data:      event.Data,
		})
	}
}

// Settings returns the current feature toggles
func (s *SecurityService) Settings() models.SecuritySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// RateLimitConfig returns the current throttling policy
func (s *SecurityService) RateLimitConfig() models.RateLimitConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitConfig
}

// UpdateSettings validates and applies new toggles. Live sessions pick up the
// new limits immediately.
func (s *SecurityService) UpdateSettings(settings models.SecuritySettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	s.events.SetDetectionEnabled(settings.EnableSuspiciousActivityDetection)
	for _, tracker := range s.trackers() {
		tracker.SetLimits(settings.ActivityTimeout, settings.MaxSessionDuration)
	}

	s.logger.Info("security settings updated",
		slog.Bool("rate_limiting", settings.EnableRateLimiting),
		slog.Bool("session_timeout", settings.EnableSessionTimeout),
		slog.Bool("csrf_protection", settings.EnableCSRFProtection),
		slog.Bool("suspicious_activity_detection", settings.EnableSuspiciousActivityDetection))
	return nil
}

// UpdateRateLimitConfig validates and applies a new throttling policy
func (s *SecurityService) UpdateRateLimitConfig(cfg models.RateLimitConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.rateLimitConfig = cfg
	s.mu.Unlock()

	s.logger.Info("rate limit config updated",
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.Duration("window", cfg.Window),
		slog.Duration("lockout_duration", cfg.LockoutDuration))
	return nil
}

// CheckRateLimit decides whether identifier may attempt a login
func (s *SecurityService) CheckRateLimit(identifier string) models.RateLimitDecision {
	settings, cfg := s.snapshot()
	if !settings.EnableRateLimiting {
		return unthrottled(cfg)
	}
	return s.rateLimiter.CheckRateLimit(identifier, cfg)
}

// RecordFailedLogin adds the failure to the audit history and, when rate
// limiting is on, counts it towards a lockout. The returned decision is the
// state after recording.
func (s *SecurityService) RecordFailedLogin(identifier, reason, context string) models.RateLimitDecision {
	settings, cfg := s.snapshot()
	if reason == "" {
		reason = models.FailedLoginReasonInvalidCredentials
	}

	recent := s.events.RecordFailedLogin(identifier, reason, context)

	decision := unthrottled(cfg)
	if settings.EnableRateLimiting {
		decision = s.rateLimiter.RecordFailedAttempt(identifier, cfg)
	}

	if settings.EnableSuspiciousActivityDetection && recent == MultipleFailedLoginsThreshold {
		s.events.AddSecurityEvent(models.EventMultipleFailedLogins, models.EventData{
			"identifier": identifier,
			"count":      recent,
			"reason":     reason,
		})
	}
	return decision
}

// RecordSuccessfulLogin clears every rate limit trace of identifier
func (s *SecurityService) RecordSuccessfulLogin(identifier string) {
	s.rateLimiter.RecordSuccessfulAttempt(identifier)
}

// UnlockAccount lifts a lockout. It reports whether the identifier was locked.
func (s *SecurityService) UnlockAccount(identifier string) bool {
	return s.rateLimiter.UnlockKey(identifier)
}

// GetActiveLocks lists the identifiers currently locked out
func (s *SecurityService) GetActiveLocks() []models.LockEntry {
	return s.rateLimiter.ActiveLocks()
}

// GenerateCSRFToken issues a token for sessionID
func (s *SecurityService) GenerateCSRFToken(sessionID string) (*models.CSRFToken, error) {
	token, err := s.csrf.GenerateToken(sessionID)
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}
	return token, nil
}

// ValidateCSRFToken checks token without consuming it. Failures are logged
// as CSRF_ATTEMPT. With CSRF protection off every token validates.
func (s *SecurityService) ValidateCSRFToken(token, sessionID string) models.CSRFValidation {
	if !s.Settings().EnableCSRFProtection {
		return models.CSRFValidation{Valid: true}
	}
	result := s.csrf.ValidateToken(token, sessionID)
	s.reportCSRFFailure("validate", token, sessionID, result)
	return result
}

// ConsumeCSRFToken validates and spends token atomically
func (s *SecurityService) ConsumeCSRFToken(token, sessionID string) models.CSRFValidation {
	if !s.Settings().EnableCSRFProtection {
		return models.CSRFValidation{Valid: true}
	}
	result := s.csrf.ConsumeToken(token, sessionID)
	s.reportCSRFFailure("use", token, sessionID, result)
	return result
}

// UseCSRFToken spends token and reports whether it was accepted
func (s *SecurityService) UseCSRFToken(token, sessionID string) bool {
	return s.ConsumeCSRFToken(token, sessionID).Valid
}

func (s *SecurityService) reportCSRFFailure(operation, token, sessionID string, result models.CSRFValidation) {
	if result.Valid {
		return
	}
	reason := ""
	if result.Reason != nil {
		reason = string(*result.Reason)
	}
	s.events.AddSecurityEvent(models.EventCSRFAttempt, models.EventData{
		"operation":  operation,
		"reason":     reason,
		"session_id": sessionID,
		"token":      pkglogger.MaskToken(token),
	})
}

// GetCSRFStats summarizes the token store
func (s *SecurityService) GetCSRFStats() models.CSRFStats {
	return s.csrf.Stats()
}

// ClearCSRFTokens drops every token
func (s *SecurityService) ClearCSRFTokens() int {
	return s.csrf.ClearAll()
}

// ClearCSRFSession drops every token of sessionID
func (s *SecurityService) ClearCSRFSession(sessionID string) int {
	return s.csrf.ClearSession(sessionID)
}

// UpdateActivity records activity for sessionID, starting to track it if
// needed. It reports whether the session is usable. A session that was swept
// after reaching its maximum duration stays unusable.
func (s *SecurityService) UpdateActivity(sessionID string) (bool, error) {
	if sessionID == "" {
		return false, models.ErrEmptySessionID
	}

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if _, ended := s.ended[sessionID]; ended {
		return false, nil
	}

	tracker, ok := s.sessions[sessionID]
	if !ok {
		settings := s.Settings()
		s.sessions[sessionID] = NewSessionActivityTracker(sessionID, settings.ActivityTimeout, settings.MaxSessionDuration, s.events, s.now)
		return true, nil
	}
	return tracker.Touch(), nil
}

// ExtendSession renews sessionID. It has the same effect as UpdateActivity.
func (s *SecurityService) ExtendSession(sessionID string) (bool, error) {
	return s.UpdateActivity(sessionID)
}

// CheckSessionExpiry reports whether sessionID has expired. Unknown sessions
// are expired. With session timeout off no session expires.
func (s *SecurityService) CheckSessionExpiry(sessionID string) bool {
	tracker := s.tracker(sessionID)
	if tracker == nil {
		return true
	}
	if !s.Settings().EnableSessionTimeout {
		return false
	}
	return tracker.CheckSessionExpiry()
}

// SessionActivity returns the state of sessionID
func (s *SecurityService) SessionActivity(sessionID string) (models.SessionActivity, error) {
	tracker := s.tracker(sessionID)
	if tracker == nil {
		return models.SessionActivity{}, models.ErrNotFound
	}
	activity := tracker.Snapshot()
	if !s.Settings().EnableSessionTimeout {
		activity.Expired = false
	}
	return activity, nil
}

func (s *SecurityService) tracker(sessionID string) *SessionActivityTracker {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return s.sessions[sessionID]
}

func (s *SecurityService) trackers() map[string]*SessionActivityTracker {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	out := make(map[string]*SessionActivityTracker, len(s.sessions))
	for id, t := range s.sessions {
		out[id] = t
	}
	return out
}

// GetSecurityStatus is a read-only snapshot for monitoring. When sessionID is
// empty the session fields describe the most recently active session.
func (s *SecurityService) GetSecurityStatus(sessionID string) models.SecurityStatus {
	events, _, flags := s.events.Counts()
	status := models.SecurityStatus{
		ActiveLocks:        len(s.rateLimiter.ActiveLocks()),
		RecentFailures:     s.events.RecentFailures(),
		SecurityEvents:     events,
		SuspiciousActivity: flags,
	}

	timeoutOn := s.Settings().EnableSessionTimeout
	if sessionID != "" {
		tracker := s.tracker(sessionID)
		if tracker == nil {
			status.IsSessionExpired = true
			return status
		}
		last := tracker.LastActivity()
		status.LastActivity = &last
		status.IsSessionExpired = timeoutOn && tracker.Expired()
		return status
	}

	var latest *SessionActivityTracker
	var latestAt time.Time
	for _, tracker := range s.trackers() {
		if at := tracker.LastActivity(); latest == nil || at.After(latestAt) {
			latest, latestAt = tracker, at
		}
	}
	if latest != nil {
		status.LastActivity = &latestAt
		status.IsSessionExpired = timeoutOn && latest.Expired()
	}
	return status
}

// GetSecurityEvents returns the retained events, oldest first
func (s *SecurityService) GetSecurityEvents() []models.SecurityEvent {
	return s.events.Events()
}

// GetFailedLogins returns the retained failed-login history, oldest first
func (s *SecurityService) GetFailedLogins() []models.FailedLoginRecord {
	return s.events.FailedLogins()
}

// GetSuspiciousActivity returns the retained suspicious activity flags
func (s *SecurityService) GetSuspiciousActivity() []models.SuspiciousActivityFlag {
	return s.events.SuspiciousActivity()
}

// AddSecurityEvent appends an event to the log
func (s *SecurityService) AddSecurityEvent(eventType models.EventType, data models.EventData) models.SecurityEvent {
	return s.events.AddSecurityEvent(eventType, data)
}

// ClearSecurityEvents empties events, failed logins and flags together
func (s *SecurityService) ClearSecurityEvents() {
	s.events.Clear()
}

// ValidatePassword enforces the password policy when strong passwords are required
func (s *SecurityService) ValidatePassword(password string) error {
	if password == "" {
		return models.ErrWeakPassword
	}
	if !s.Settings().RequireStrongPasswords {
		return nil
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("%w: %v", models.ErrWeakPassword, err)
	}
	return nil
}

// Cleanup removes only entries that every reader already treats as expired,
// so it may run concurrently with requests.
func (s *SecurityService) Cleanup() CleanupResult {
	settings, cfg := s.snapshot()

	result := CleanupResult{
		ExpiredCSRFTokens: s.csrf.Cleanup(),
		PrunedEntries:     s.events.Prune(),
		ClearedLimits:     s.rateLimiter.Cleanup(cfg),
	}

	for id, tracker := range s.trackers() {
		// Records the SESSION_EXPIRED transition outside sessionsMu
		if settings.EnableSessionTimeout && !tracker.CheckSessionExpiry() {
			continue
		}

		s.sessionsMu.Lock()
		// Touches hold sessionsMu, so the expiry seen here is final
		if s.sessions[id] == tracker && sessionSweepable(tracker, settings, s.now()) {
			if tracker.PastMaxDuration() {
				s.ended[id] = s.now()
			}
			delete(s.sessions, id)
			result.ExpiredSessions++
		}
		s.sessionsMu.Unlock()
	}

	s.sessionsMu.Lock()
	now := s.now()
	for id, endedAt := range s.ended {
		if clampAge(now, endedAt) > EventRetention {
			delete(s.ended, id)
		}
	}
	s.sessionsMu.Unlock()

	return result
}

// sessionSweepable must be called with sessionsMu held. Without session
// timeouts a session is kept until it has been idle for EventRetention.
func sessionSweepable(tracker *SessionActivityTracker, settings models.SecuritySettings, now time.Time) bool {
	if settings.EnableSessionTimeout {
		return tracker.Expired()
	}
	return clampAge(now, tracker.LastActivity()) > EventRetention
}

func (s *SecurityService) snapshot() (models.SecuritySettings, models.RateLimitConfig) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, s.rateLimitConfig
}

func unthrottled(cfg models.RateLimitConfig) models.RateLimitDecision {
	return models.RateLimitDecision{
		Allowed:           true,
		RemainingAttempts: cfg.MaxAttempts,
	}
}

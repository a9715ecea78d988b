package services

import (
	"log/slog"
	"sort"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// RateLimitService throttles failed logins per identifier and locks the
// identifier out once the threshold is crossed inside the window.
type RateLimitService struct {
	store  *repositories.AttemptStore
	events EventRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store *repositories.AttemptStore, events EventRecorder, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Call before the service is shared.
func (s *RateLimitService) SetClock(now func() time.Time) {
	s.now = now
}

// CheckRateLimit decides whether identifier may attempt a login now. It never
// fails: an unknown identifier is clean. A lapsed lock or window is reset here.
func (s *RateLimitService) CheckRateLimit(identifier string, cfg models.RateLimitConfig) models.RateLimitDecision {
	now := s.now()

	var decision models.RateLimitDecision
	var lockedUntil *time.Time
	s.store.Update(identifier, func(entry *repositories.AttemptEntry) {
		resetLapsed(entry, now, cfg)
		decision = decide(entry, now, cfg)
		if entry.Lock != nil {
			until := entry.Lock.Until
			lockedUntil = &until
		}
	})

	if !decision.Allowed {
		data := models.EventData{
			"identifier":      identifier,
			"failed_attempts": decision.FailedAttempts,
		}
		if lockedUntil != nil {
			data["reset_time"] = lockedUntil.UTC().Format(time.RFC3339)
		}
		s.events.AddSecurityEvent(models.EventRateLimitExceeded, data)
	}
	return decision
}

// RecordFailedAttempt counts a failure and locks the identifier when the
// count reaches MaxAttempts. ACCOUNT_LOCKED is emitted only when a lock is
// newly created.
func (s *RateLimitService) RecordFailedAttempt(identifier string, cfg models.RateLimitConfig) models.RateLimitDecision {
	now := s.now()

	var decision models.RateLimitDecision
	var newLock *models.LockEntry
	s.store.Update(identifier, func(entry *repositories.AttemptEntry) {
		resetLapsed(entry, now, cfg)

		if entry.Record == nil {
			entry.Record = &models.AttemptRecord{
				Identifier:  identifier,
				WindowStart: now,
			}
		}
		entry.Record.Count++
		entry.Record.LastAttempt = now

		if entry.Record.Count >= cfg.MaxAttempts {
			until := now.Add(cfg.LockoutDuration)
			if entry.Lock == nil {
				entry.Lock = &models.LockEntry{
					Identifier: identifier,
					Reason:     models.LockReasonTooManyAttempts,
					CreatedAt:  now,
				}
				lock := *entry.Lock
				newLock = &lock
			}
			entry.Lock.Until = until
			entry.Lock.Duration = cfg.LockoutDuration
			entry.Record.Locked = true
			entry.Record.LockUntil = &until
			if newLock != nil {
				newLock.Until = until
				newLock.Duration = cfg.LockoutDuration
			}
		}

		decision = decide(entry, now, cfg)
	})

	if newLock != nil {
		s.logger.Warn("identifier locked out",
			slog.String("identifier", pkglogger.SanitizedIdentifier(identifier)),
			slog.Int("attempts", decision.FailedAttempts),
			slog.Time("until", newLock.Until))
		s.events.AddSecurityEvent(models.EventAccountLocked, models.EventData{
			"identifier":       identifier,
			"attempts":         decision.FailedAttempts,
			"lock_until":       newLock.Until.UTC().Format(time.RFC3339),
			"lockout_duration": newLock.Duration.String(),
			"reason":           string(newLock.Reason),
		})
	}
	return decision
}

// RecordSuccessfulAttempt clears every trace of identifier
func (s *RateLimitService) RecordSuccessfulAttempt(identifier string) {
	s.store.Delete(identifier)
}

// UnlockKey force-clears the lock and attempt record regardless of timers and
// reports whether the identifier was locked.
func (s *RateLimitService) UnlockKey(identifier string) bool {
	now := s.now()

	wasLocked := false
	s.store.Update(identifier, func(entry *repositories.AttemptEntry) {
		wasLocked = entry.Lock != nil && entry.Lock.Active(now)
		entry.Record = nil
		entry.Lock = nil
	})

	s.logger.Info("identifier unlocked",
		slog.String("identifier", pkglogger.SanitizedIdentifier(identifier)),
		slog.Bool("was_locked", wasLocked))
	s.events.AddSecurityEvent(models.EventAccountUnlocked, models.EventData{
		"identifier": identifier,
		"was_locked": wasLocked,
	})
	return wasLocked
}

// ActiveLocks returns the locks that still deny at now, ordered by identifier
func (s *RateLimitService) ActiveLocks() []models.LockEntry {
	locks := s.store.Locks(s.now())
	sort.Slice(locks, func(i, j int) bool {
		return locks[i].Identifier < locks[j].Identifier
	})
	return locks
}

// Cleanup drops lapsed locks and attempt records whose window elapsed without
// an active lock. It returns how many identifiers were removed.
func (s *RateLimitService) Cleanup(cfg models.RateLimitConfig) int {
	now := s.now()
	return s.store.Prune(func(_ string, entry *repositories.AttemptEntry) {
		resetLapsed(entry, now, cfg)
	})
}

// resetLapsed applies the lazy expiry rules to entry. A lapsed lock returns
// the identifier to a clean state.
func resetLapsed(entry *repositories.AttemptEntry, now time.Time, cfg models.RateLimitConfig) {
	if entry.Lock != nil {
		if entry.Lock.Active(now) {
			return
		}
		entry.Lock = nil
		entry.Record = nil
		return
	}
	if entry.Record != nil && entry.Record.WindowExpired(now, cfg.Window) {
		entry.Record = nil
	}
}

func decide(entry *repositories.AttemptEntry, now time.Time, cfg models.RateLimitConfig) models.RateLimitDecision {
	count := 0
	if entry.Record != nil {
		count = entry.Record.Count
	}

	decision := models.RateLimitDecision{FailedAttempts: count}
	if cfg.ProgressiveDelay {
		decision.RetryDelay = auth.ProgressiveDelay(count, cfg.DelayStep, cfg.MaxDelay)
	}

	if entry.Lock != nil && entry.Lock.Active(now) {
		reason := models.DenyReasonLocked
		until := entry.Lock.Until
		duration := entry.Lock.Duration
		decision.Reason = &reason
		decision.ResetTime = &until
		decision.LockoutDuration = &duration
		return decision
	}

	if count >= cfg.MaxAttempts {
		// the threshold was lowered below an existing count
		reason := models.DenyReasonLocked
		reset := entry.Record.WindowStart.Add(cfg.Window)
		decision.Reason = &reason
		decision.ResetTime = &reset
		return decision
	}

	decision.Allowed = true
	decision.RemainingAttempts = cfg.MaxAttempts - count
	return decision
}

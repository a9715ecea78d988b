package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

const csrfTokenBytes = 32

// CSRFTokenManager issues and consumes single-use, session-bound CSRF tokens.
// Expiry is evaluated lazily on every read; Cleanup only drops tokens that
// are already expired.
type CSRFTokenManager struct {
	tokens   map[string]*models.CSRFToken
	mu       sync.RWMutex
	tokenTTL time.Duration
	now      func() time.Time
}

// NewCSRFTokenManager creates a new CSRF token manager
func NewCSRFTokenManager(tokenTTL time.Duration) *CSRFTokenManager {
	return &CSRFTokenManager{
		tokens:   make(map[string]*models.CSRFToken),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Call before the manager is shared.
func (m *CSRFTokenManager) SetClock(now func() time.Time) {
	m.now = now
}

// TTL returns the lifetime of newly issued tokens
func (m *CSRFTokenManager) TTL() time.Duration {
	return m.tokenTTL
}

// GenerateToken creates a new CSRF token bound to sessionID. Several tokens
// may be alive for the same session.
func (m *CSRFTokenManager) GenerateToken(sessionID string) (*models.CSRFToken, error) {
	if sessionID == "" {
		return nil, models.ErrEmptySessionID
	}

	randomBytes := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTokenGeneration, err)
	}

	now := m.now()
	token := &models.CSRFToken{
		Value:     hex.EncodeToString(randomBytes),
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.tokenTTL),
	}

	m.mu.Lock()
	m.tokens[token.Value] = token
	m.mu.Unlock()

	issued := *token
	return &issued, nil
}

// ValidateToken reports whether token is currently acceptable for sessionID.
// It never mutates the store.
func (m *CSRFTokenManager) ValidateToken(token, sessionID string) models.CSRFValidation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.validateLocked(token, sessionID, m.now())
}

// ConsumeToken validates and marks the token used in one critical section, so
// concurrent callers can spend a token at most once.
func (m *CSRFTokenManager) ConsumeToken(token, sessionID string) models.CSRFValidation {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.validateLocked(token, sessionID, m.now())
	if result.Valid {
		m.tokens[token].Used = true
	}
	return result
}

// UseToken consumes the token and reports whether it succeeded
func (m *CSRFTokenManager) UseToken(token, sessionID string) bool {
	return m.ConsumeToken(token, sessionID).Valid
}

// validateLocked must be called with m.mu held
func (m *CSRFTokenManager) validateLocked(token, sessionID string, now time.Time) models.CSRFValidation {
	entry, exists := m.tokens[token]
	switch {
	case !exists:
		return invalid(models.CSRFReasonNotFound)
	case entry.Expired(now):
		return invalid(models.CSRFReasonExpired)
	case entry.Used:
		return invalid(models.CSRFReasonAlreadyUsed)
	case entry.SessionID != sessionID:
		return invalid(models.CSRFReasonSessionMismatch)
	}
	return models.CSRFValidation{Valid: true}
}

func invalid(reason models.CSRFFailureReason) models.CSRFValidation {
	return models.CSRFValidation{Valid: false, Reason: &reason}
}

// Stats summarizes the store without evicting anything
func (m *CSRFTokenManager) Stats() models.CSRFStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	sessions := make(map[string]struct{})
	stats := models.CSRFStats{TotalTokens: len(m.tokens)}
	for _, entry := range m.tokens {
		sessions[entry.SessionID] = struct{}{}
		if entry.Used {
			stats.UsedTokens++
			continue
		}
		if !entry.Expired(now) {
			stats.ActiveTokens++
		}
	}
	stats.SessionCount = len(sessions)
	return stats
}

// ClearSession drops every token issued to sessionID
func (m *CSRFTokenManager) ClearSession(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for value, entry := range m.tokens {
		if entry.SessionID == sessionID {
			delete(m.tokens, value)
			removed++
		}
	}
	return removed
}

// ClearAll drops every token
func (m *CSRFTokenManager) ClearAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := len(m.tokens)
	m.tokens = make(map[string]*models.CSRFToken)
	return removed
}

// Cleanup removes expired tokens and returns how many were dropped
func (m *CSRFTokenManager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for value, entry := range m.tokens {
		if entry.Expired(now) {
			delete(m.tokens, value)
			removed++
		}
	}
	return removed
}

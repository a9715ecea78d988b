package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAlertSender struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	sendFunc func(ctx context.Context, subject, body string) error
}

func (m *mockAlertSender) SendAlert(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, body)
	m.mu.Unlock()
	if m.sendFunc == nil {
		return nil
	}
	return m.sendFunc(ctx, subject, body)
}

func TestShouldAlert(t *testing.T) {
	tests := []struct {
		eventType models.EventType
		want      bool
	}{
		{models.EventAccountLocked, true},
		{models.EventCSRFAttempt, true},
		{models.EventMultipleFailedLogins, true},
		{models.EventSuspiciousActivity, true},
		{models.EventRateLimitExceeded, false},
		{models.EventSessionExpired, false},
		{models.EventAccountUnlocked, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			event := models.SecurityEvent{Type: tt.eventType, Severity: models.SeverityFor(tt.eventType)}
			assert.Equal(t, tt.want, services.ShouldAlert(event))
		})
	}
}

func TestAlertService_SendsOnlyAlertableEvents(t *testing.T) {
	sender := &mockAlertSender{}
	alerts := services.NewAlertService(sender, 8, discardLogger())

	assert.True(t, alerts.Notify(models.SecurityEvent{ID: 1, Type: models.EventAccountLocked, Severity: models.SeverityHigh}))
	assert.False(t, alerts.Notify(models.SecurityEvent{ID: 2, Type: models.EventSessionExpired, Severity: models.SeverityLow}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, alerts.Close(ctx))

	require.Len(t, sender.subjects, 1)
	assert.Equal(t, "[security] ACCOUNT_LOCKED (high)", sender.subjects[0])
}

func TestAlertService_SendFailureIsLogged(t *testing.T) {
	sender := &mockAlertSender{sendFunc: func(ctx context.Context, subject, body string) error {
		return errors.New("throttled")
	}}
	alerts := services.NewAlertService(sender, 8, discardLogger())

	alerts.Notify(models.SecurityEvent{ID: 1, Type: models.EventCSRFAttempt, Severity: models.SeverityHigh})
	alerts.Notify(models.SecurityEvent{ID: 2, Type: models.EventCSRFAttempt, Severity: models.SeverityHigh})
	require.NoError(t, alerts.Close(context.Background()))

	assert.Len(t, sender.subjects, 2)
}

func TestFormatAlert_MasksIdentifier(t *testing.T) {
	event := models.SecurityEvent{
		ID:        42,
		Type:      models.EventAccountLocked,
		Severity:  models.SeverityHigh,
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Data:      models.EventData{"identifier": "victim@example.com", "attempts": 5},
	}

	subject, body := services.FormatAlert(event)

	assert.Equal(t, "[security] ACCOUNT_LOCKED (high)", subject)
	assert.Contains(t, body, "Security event 42")
	assert.Contains(t, body, "2026-03-01T09:00:00Z")
	assert.Contains(t, body, "attempts: 5")
	assert.NotContains(t, body, "victim@example.com")
	assert.Less(t, strings.Index(body, "attempts"), strings.Index(body, "identifier"), "details are sorted")
}

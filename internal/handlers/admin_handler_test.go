package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdminHandler(t *testing.T) (*handlers.AdminHandler, *services.SecurityService) {
	svc := newTestSecurityService(t)
	h := handlers.NewAdminHandler(svc, pkglogger.NewAuditLogger(discardLogger()), &pkghttp.IPConfig{}, discardLogger())
	return h, svc
}

func TestAdminUnlock(t *testing.T) {
	h, svc := newTestAdminHandler(t)

	for i := 0; i < 3; i++ {
		svc.RecordFailedLogin("mallory", "", "")
	}
	require.Len(t, svc.GetActiveLocks(), 1)

	w := httptest.NewRecorder()
	h.Unlock(w, withAdminContext(newJSONRequest(t, http.MethodPost, "/admin/security/unlock", map[string]string{"identifier": "Mallory"})))

	var resp handlers.UnlockResponse
	decodeJSON(t, w, http.StatusOK, &resp)
	assert.Equal(t, "mallory", resp.Identifier)
	assert.True(t, resp.WasLocked)
	assert.Empty(t, svc.GetActiveLocks())
	assert.True(t, svc.CheckRateLimit("mallory").Allowed)

	w = httptest.NewRecorder()
	h.Unlock(w, withAdminContext(newJSONRequest(t, http.MethodPost, "/admin/security/unlock", map[string]string{"identifier": "mallory"})))
	decodeJSON(t, w, http.StatusOK, &resp)
	assert.False(t, resp.WasLocked)
}

func TestAdminGetEvents_FilterAndLimit(t *testing.T) {
	h, svc := newTestAdminHandler(t)

	svc.AddSecurityEvent(models.EventCSRFAttempt, models.EventData{"n": 1})
	svc.AddSecurityEvent(models.EventSessionExpired, models.EventData{"n": 2})
	svc.AddSecurityEvent(models.EventCSRFAttempt, models.EventData{"n": 3})

	tests := []struct {
		name     string
		query    string
		expected int
	}{
		{"all", "", 3},
		{"by type", "?type=csrf_attempt", 2},
		{"limited", "?limit=1", 1},
		{"bad limit ignored", "?limit=abc", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.GetEvents(w, withAdminContext(httptest.NewRequest(http.MethodGet, "/admin/security/events"+tt.query, nil)))

			var events []models.SecurityEvent
			decodeJSON(t, w, http.StatusOK, &events)
			assert.Len(t, events, tt.expected)
		})
	}

	w := httptest.NewRecorder()
	h.GetEvents(w, withAdminContext(httptest.NewRequest(http.MethodGet, "/admin/security/events?limit=1", nil)))
	var events []models.SecurityEvent
	decodeJSON(t, w, http.StatusOK, &events)
	require.Len(t, events, 1)
	assert.Equal(t, float64(3), events[0].Data["n"], "limit keeps the newest events")
}

func TestAdminClearEvents(t *testing.T) {
	h, svc := newTestAdminHandler(t)
	svc.AddSecurityEvent(models.EventSessionExpired, nil)

	w := httptest.NewRecorder()
	h.ClearEvents(w, withAdminContext(httptest.NewRequest(http.MethodDelete, "/admin/security/events", nil)))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, svc.GetSecurityEvents())
}

func TestAdminGetStatus(t *testing.T) {
	h, svc := newTestAdminHandler(t)
	svc.RecordFailedLogin("eve", "", "")

	w := httptest.NewRecorder()
	h.GetStatus(w, withAdminContext(httptest.NewRequest(http.MethodGet, "/admin/security/status", nil)))

	var status models.SecurityStatus
	decodeJSON(t, w, http.StatusOK, &status)
	assert.Equal(t, 1, status.RecentFailures)
	assert.Zero(t, status.ActiveLocks)
}

func TestAdminClearCSRFSession(t *testing.T) {
	h, svc := newTestAdminHandler(t)

	_, err := svc.GenerateCSRFToken("sess-1")
	require.NoError(t, err)
	_, err = svc.GenerateCSRFToken("sess-1")
	require.NoError(t, err)
	_, err = svc.GenerateCSRFToken("sess-2")
	require.NoError(t, err)

	req := withAdminContext(httptest.NewRequest(http.MethodDelete, "/admin/security/csrf/sessions/sess-1", nil))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", "sess-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.ClearCSRFSession(w, req)

	var resp handlers.ClearedResponse
	decodeJSON(t, w, http.StatusOK, &resp)
	assert.Equal(t, 2, resp.Removed)
	assert.Equal(t, 1, svc.GetCSRFStats().TotalTokens)
}

func TestAdminUpdateSettings(t *testing.T) {
	h, svc := newTestAdminHandler(t)

	t.Run("applies valid settings", func(t *testing.T) {
		payload := handlers.SecuritySettingsPayload{
			EnableRateLimiting:   false,
			EnableSessionTimeout: true,
			MaxSessionDuration:   "4h",
			ActivityTimeout:      "10m",
		}

		w := httptest.NewRecorder()
		h.UpdateSettings(w, withAdminContext(newJSONRequest(t, http.MethodPut, "/admin/security/settings", payload)))

		var resp handlers.SecuritySettingsPayload
		decodeJSON(t, w, http.StatusOK, &resp)
		assert.Equal(t, "10m0s", resp.ActivityTimeout)
		assert.False(t, svc.Settings().EnableRateLimiting)
	})

	t.Run("unparseable duration", func(t *testing.T) {
		payload := handlers.SecuritySettingsPayload{MaxSessionDuration: "forever", ActivityTimeout: "10m"}

		w := httptest.NewRecorder()
		h.UpdateSettings(w, withAdminContext(newJSONRequest(t, http.MethodPut, "/admin/security/settings", payload)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejected by validation", func(t *testing.T) {
		payload := handlers.SecuritySettingsPayload{MaxSessionDuration: "1h", ActivityTimeout: "0s"}

		w := httptest.NewRecorder()
		h.UpdateSettings(w, withAdminContext(newJSONRequest(t, http.MethodPut, "/admin/security/settings", payload)))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "10m0s", svc.Settings().ActivityTimeout.String())
	})
}

func TestAdminUpdateRateLimitConfig(t *testing.T) {
	h, svc := newTestAdminHandler(t)

	payload := handlers.RateLimitConfigPayload{
		MaxAttempts:     10,
		Window:          "5m",
		LockoutDuration: "1h",
	}

	w := httptest.NewRecorder()
	h.UpdateRateLimitConfig(w, withAdminContext(newJSONRequest(t, http.MethodPut, "/admin/security/rate-limit", payload)))

	var resp handlers.RateLimitConfigPayload
	decodeJSON(t, w, http.StatusOK, &resp)
	assert.Equal(t, 10, resp.MaxAttempts)
	assert.Equal(t, "5m0s", resp.Window)
	assert.Equal(t, 10, svc.RateLimitConfig().MaxAttempts)

	payload.MaxAttempts = 0
	w = httptest.NewRecorder()
	h.UpdateRateLimitConfig(w, withAdminContext(newJSONRequest(t, http.MethodPut, "/admin/security/rate-limit", payload)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminUpdateRateLimitConfig_OmittedDelaysKeepCurrentValues(t *testing.T) {
	h, svc := newTestAdminHandler(t)

	payload := handlers.RateLimitConfigPayload{
		MaxAttempts:      5,
		Window:           "15m",
		LockoutDuration:  "30m",
		ProgressiveDelay: true,
	}

	w := httptest.NewRecorder()
	h.UpdateRateLimitConfig(w, withAdminContext(newJSONRequest(t, http.MethodPut, "/admin/security/rate-limit", payload)))

	var resp handlers.RateLimitConfigPayload
	decodeJSON(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.DefaultMaxDelay.String(), resp.MaxDelay)
	assert.Equal(t, models.DefaultDelayStep.String(), resp.DelayStep)

	cfg := svc.RateLimitConfig()
	assert.Equal(t, models.DefaultMaxDelay, cfg.MaxDelay)
	assert.Equal(t, models.DefaultDelayStep, cfg.DelayStep)

	decision := svc.RecordFailedLogin("frank", "", "")
	assert.Equal(t, models.DefaultDelayStep, decision.RetryDelay)
	decision = svc.RecordFailedLogin("frank", "", "")
	assert.Equal(t, 2*models.DefaultDelayStep, decision.RetryDelay)
}

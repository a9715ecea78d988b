package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionRequest(method, url, sessionID string) *http.Request {
	req := httptest.NewRequest(method, url, nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionIDCookie, Value: sessionID})
	}
	return req
}

func TestSessionTouch_StartsTracking(t *testing.T) {
	h := handlers.NewSessionHandler(newTestSecurityService(t), discardLogger())

	w := httptest.NewRecorder()
	h.Touch(w, sessionRequest(http.MethodPost, "/security/session/touch", "sess-1"))

	var resp handlers.SessionStatusResponse
	decodeJSON(t, w, http.StatusOK, &resp)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.False(t, resp.Expired)
	require.NotNil(t, resp.LastActivity)
	assert.Positive(t, resp.TimeoutMs)
}

func TestSessionTouch_MissingSession_Returns400(t *testing.T) {
	h := handlers.NewSessionHandler(newTestSecurityService(t), discardLogger())

	for _, fn := range []http.HandlerFunc{h.Touch, h.Extend, h.Status} {
		w := httptest.NewRecorder()
		fn(w, sessionRequest(http.MethodPost, "/security/session", ""))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestSessionStatus(t *testing.T) {
	h := handlers.NewSessionHandler(newTestSecurityService(t), discardLogger())

	t.Run("unknown session is expired", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Status(w, sessionRequest(http.MethodGet, "/security/session/status", "ghost"))

		var resp handlers.SessionStatusResponse
		decodeJSON(t, w, http.StatusOK, &resp)
		assert.True(t, resp.Expired)
		assert.Nil(t, resp.LastActivity)
	})

	t.Run("tracked session is active", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Extend(w, sessionRequest(http.MethodPost, "/security/session/extend", "sess-2"))
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		h.Status(w, sessionRequest(http.MethodGet, "/security/session/status", "sess-2"))

		var resp handlers.SessionStatusResponse
		decodeJSON(t, w, http.StatusOK, &resp)
		assert.False(t, resp.Expired)
		require.NotNil(t, resp.StartedAt)
	})
}

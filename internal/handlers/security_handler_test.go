package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSecurityHandler(t *testing.T) (*handlers.SecurityHandler, *services.SecurityService) {
	svc := newTestSecurityService(t)
	return handlers.NewSecurityHandler(svc, nil, &pkghttp.IPConfig{}, discardLogger()), svc
}

func TestCheckLogin_CleanIdentifier_Returns200(t *testing.T) {
	h, _ := newTestSecurityHandler(t)

	w := httptest.NewRecorder()
	h.CheckLogin(w, newJSONRequest(t, http.MethodPost, "/security/login/check", map[string]string{"identifier": "bob@example.com"}))

	var resp handlers.RateLimitDecisionResponse
	decodeJSON(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Allowed)
	assert.Equal(t, 3, resp.RemainingAttempts)
}

func TestCheckLogin_MissingIdentifier_Returns400(t *testing.T) {
	h, _ := newTestSecurityHandler(t)

	for _, body := range []interface{}{
		map[string]string{},
		map[string]string{"identifier": ""},
		map[string]string{"identifier": "a", "unexpected": "x"},
	} {
		w := httptest.NewRecorder()
		h.CheckLogin(w, newJSONRequest(t, http.MethodPost, "/security/login/check", body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestRecordFailure_LocksAfterThreshold(t *testing.T) {
	h, svc := newTestSecurityHandler(t)

	for i := 1; i <= 2; i++ {
		w := httptest.NewRecorder()
		h.RecordFailure(w, newJSONRequest(t, http.MethodPost, "/security/login/failure", map[string]string{"identifier": "Bob@Example.com "}))

		var resp handlers.RateLimitDecisionResponse
		decodeJSON(t, w, http.StatusOK, &resp)
		assert.Equal(t, i, resp.FailedAttempts)
		assert.Equal(t, 3-i, resp.RemainingAttempts)
	}

	w := httptest.NewRecorder()
	h.RecordFailure(w, newJSONRequest(t, http.MethodPost, "/security/login/failure", map[string]string{"identifier": "bob@example.com"}))

	var resp handlers.RateLimitDecisionResponse
	decodeJSON(t, w, http.StatusTooManyRequests, &resp)
	assert.False(t, resp.Allowed)
	require.NotNil(t, resp.Reason)
	assert.Equal(t, models.DenyReasonLocked, *resp.Reason)
	require.NotNil(t, resp.LockoutDurationMs)
	assert.Equal(t, models.DefaultLockoutDuration.Milliseconds(), *resp.LockoutDurationMs)

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, models.DefaultLockoutDuration.Seconds(), retryAfter, 5)

	w = httptest.NewRecorder()
	h.CheckLogin(w, newJSONRequest(t, http.MethodPost, "/security/login/check", map[string]string{"identifier": "bob@example.com"}))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	failures := svc.GetFailedLogins()
	require.Len(t, failures, 3)
	assert.Len(t, failures[0].Context, 32, "fingerprint recorded when no context is given")
}

func TestRecordSuccess_ClearsFailures(t *testing.T) {
	h, _ := newTestSecurityHandler(t)

	w := httptest.NewRecorder()
	h.RecordFailure(w, newJSONRequest(t, http.MethodPost, "/security/login/failure", map[string]string{"identifier": "carol"}))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.RecordSuccess(w, newJSONRequest(t, http.MethodPost, "/security/login/success", map[string]string{"identifier": "carol"}))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.CheckLogin(w, newJSONRequest(t, http.MethodPost, "/security/login/check", map[string]string{"identifier": "carol"}))
	var resp handlers.RateLimitDecisionResponse
	decodeJSON(t, w, http.StatusOK, &resp)
	assert.Equal(t, 3, resp.RemainingAttempts)
}

func TestCheckPassword(t *testing.T) {
	h, _ := newTestSecurityHandler(t)

	tests := []struct {
		password string
		valid    bool
	}{
		{"Tr0ub4dor&3x", true},
		{"password", false},
		{"alllowercase1!", false},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.CheckPassword(w, newJSONRequest(t, http.MethodPost, "/security/password/check", map[string]string{"password": tt.password}))

		var resp handlers.PasswordCheckResponse
		decodeJSON(t, w, http.StatusOK, &resp)
		assert.Equal(t, tt.valid, resp.Valid, tt.password)
	}

	w := httptest.NewRecorder()
	h.CheckPassword(w, newJSONRequest(t, http.MethodPost, "/security/password/check", map[string]string{"password": strings.Repeat("x", 300)}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

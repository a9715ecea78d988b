package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSecurityService builds an in-memory security service with three
// attempts before lockout
func newTestSecurityService(t *testing.T) *services.SecurityService {
	t.Helper()

	cfg := models.DefaultRateLimitConfig()
	cfg.MaxAttempts = 3
	svc, err := services.NewSecurityService(cfg, models.DefaultSecuritySettings(), auth.NewCSRFTokenManager(time.Hour), discardLogger())
	require.NoError(t, err)
	return svc
}

// newJSONRequest creates an HTTP request with a JSON body
func newJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withAdminContext adds admin claims to the request context
func withAdminContext(req *http.Request) *http.Request {
	claims := &models.TokenClaims{
		UserID: "admin-1",
		Email:  "admin@example.com",
		Role:   models.RoleAdmin,
		Type:   "access",
	}
	return req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
}

// decodeJSON checks the status and content type and decodes the body into target
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()

	require.Equal(t, expectedStatus, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	if target != nil {
		require.NoError(t, json.NewDecoder(w.Body).Decode(target))
	}
}

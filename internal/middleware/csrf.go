package middleware

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// CSRFConsumer spends single-use CSRF tokens
type CSRFConsumer interface {
	ConsumeCSRFToken(token, sessionID string) models.CSRFValidation
}

// CSRFProtection consumes the X-CSRF-Token of every state-changing request
// against the caller's session. A token is accepted at most once.
func CSRFProtection(csrf CSRFConsumer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only protect state-changing methods
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := SessionIDFromRequest(r)
			if sessionID == "" {
				logger.Warn("CSRF check without session",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				pkghttp.WriteError(w, http.StatusForbidden, "csrf_invalid", "session id missing")
				return
			}

			token := r.Header.Get(CSRFTokenHeader)
			if token == "" {
				logger.Warn("CSRF token missing in request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				pkghttp.WriteError(w, http.StatusForbidden, "csrf_invalid", "CSRF token missing")
				return
			}

			result := csrf.ConsumeCSRFToken(token, sessionID)
			if !result.Valid {
				reason := ""
				if result.Reason != nil {
					reason = string(*result.Reason)
				}
				logger.Warn("CSRF token rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", reason))
				pkghttp.WriteErrorWithDetails(w, http.StatusForbidden, "csrf_invalid", "CSRF token invalid", reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}

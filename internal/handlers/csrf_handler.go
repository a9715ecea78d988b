package handlers

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/google/uuid"
)

// CSRFService issues and checks CSRF tokens
type CSRFService interface {
	GenerateCSRFToken(sessionID string) (*models.CSRFToken, error)
	ValidateCSRFToken(token, sessionID string) models.CSRFValidation
}

// CSRFHandler handles CSRF token HTTP requests
type CSRFHandler struct {
	service       CSRFService
	secureCookies bool
	logger        *slog.Logger
}

// NewCSRFHandler creates a new CSRFHandler. secureCookies marks the session
// cookie Secure and should be set in production.
func NewCSRFHandler(service CSRFService, secureCookies bool, logger *slog.Logger) *CSRFHandler {
	return &CSRFHandler{
		service:       service,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// IssueToken handles POST /security/csrf/token. A caller without a session
// is given a fresh anonymous session id.
func (h *CSRFHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromRequest(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionIDCookie,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}

	token, err := h.service.GenerateCSRFToken(sessionID)
	if err != nil {
		h.logger.Error("failed to issue csrf token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to issue CSRF token")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, CSRFTokenResponse{
		Token:     token.Value,
		SessionID: sessionID,
		ExpiresAt: token.ExpiresAt,
	})
}

// ValidateToken handles POST /security/csrf/validate. The token is checked
// against the caller's session and is not spent.
func (h *CSRFHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req CSRFValidateRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID := middleware.SessionIDFromRequest(r)
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "session id missing")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.service.ValidateCSRFToken(req.Token, sessionID))
}

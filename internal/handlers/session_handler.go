package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// SessionService tracks session activity
type SessionService interface {
	UpdateActivity(sessionID string) (bool, error)
	ExtendSession(sessionID string) (bool, error)
	CheckSessionExpiry(sessionID string) bool
	SessionActivity(sessionID string) (models.SessionActivity, error)
}

// SessionHandler handles session activity HTTP requests
type SessionHandler struct {
	service SessionService
	logger  *slog.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger,
	}
}

// Touch handles POST /security/session/touch
func (h *SessionHandler) Touch(w http.ResponseWriter, r *http.Request) {
	h.renew(w, r, h.service.UpdateActivity)
}

// Extend handles POST /security/session/extend
func (h *SessionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	h.renew(w, r, h.service.ExtendSession)
}

func (h *SessionHandler) renew(w http.ResponseWriter, r *http.Request, renew func(string) (bool, error)) {
	sessionID := middleware.SessionIDFromRequest(r)

	active, err := renew(sessionID)
	if err != nil {
		if errors.Is(err, models.ErrEmptySessionID) {
			pkghttp.WriteBadRequest(w, "session id missing")
			return
		}
		h.logger.Error("failed to record session activity", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to record session activity")
		return
	}

	if !active {
		pkghttp.WriteError(w, http.StatusUnauthorized, "session_expired", "Session has reached its maximum duration")
		return
	}

	h.writeStatus(w, sessionID)
}

// Status handles GET /security/session/status
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromRequest(r)
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "session id missing")
		return
	}

	h.service.CheckSessionExpiry(sessionID)
	h.writeStatus(w, sessionID)
}

func (h *SessionHandler) writeStatus(w http.ResponseWriter, sessionID string) {
	activity, err := h.service.SessionActivity(sessionID)
	if errors.Is(err, models.ErrNotFound) {
		pkghttp.WriteJSON(w, http.StatusOK, SessionStatusResponse{SessionID: sessionID, Expired: true})
		return
	}
	if err != nil {
		h.logger.Error("failed to read session activity", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to read session activity")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newSessionStatus(activity))
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// AdminSecurityService is the monitoring and control surface of the security service
type AdminSecurityService interface {
	GetSecurityStatus(sessionID string) models.SecurityStatus
	GetSecurityEvents() []models.SecurityEvent
	GetFailedLogins() []models.FailedLoginRecord
	GetSuspiciousActivity() []models.SuspiciousActivityFlag
	GetActiveLocks() []models.LockEntry
	GetCSRFStats() models.CSRFStats
	UnlockAccount(identifier string) bool
	ClearSecurityEvents()
	ClearCSRFTokens() int
	ClearCSRFSession(sessionID string) int
	Settings() models.SecuritySettings
	UpdateSettings(settings models.SecuritySettings) error
	RateLimitConfig() models.RateLimitConfig
	UpdateRateLimitConfig(cfg models.RateLimitConfig) error
}

// AdminHandler handles the admin security panel HTTP requests
type AdminHandler struct {
	service     AdminSecurityService
	auditLogger *pkglogger.AuditLogger
	ipConfig    *pkghttp.IPConfig
	logger      *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminSecurityService, auditLogger *pkglogger.AuditLogger, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:     service,
		auditLogger: auditLogger,
		ipConfig:    ipConfig,
		logger:      logger,
	}
}

// GetStatus handles GET /admin/security/status
// Accepts optional query param ?session_id=.
func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.GetSecurityStatus(r.URL.Query().Get("session_id")))
}

// GetEvents handles GET /admin/security/events
// Accepts optional query params ?type=EVENT_TYPE and ?limit=N (1-200), newest last.
func (h *AdminHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events := h.service.GetSecurityEvents()

	if eventType := strings.ToUpper(r.URL.Query().Get("type")); eventType != "" {
		filtered := make([]models.SecurityEvent, 0, len(events))
		for _, e := range events {
			if string(e.Type) == eventType {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	pkghttp.WriteJSON(w, http.StatusOK, tail(events, parseLimit(r)))
}

// GetFailedLogins handles GET /admin/security/failed-logins
func (h *AdminHandler) GetFailedLogins(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, tail(h.service.GetFailedLogins(), parseLimit(r)))
}

// GetSuspiciousActivity handles GET /admin/security/suspicious
func (h *AdminHandler) GetSuspiciousActivity(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.GetSuspiciousActivity())
}

// GetLocks handles GET /admin/security/locks
func (h *AdminHandler) GetLocks(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.GetActiveLocks())
}

// GetCSRFStats handles GET /admin/security/csrf/stats
func (h *AdminHandler) GetCSRFStats(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.GetCSRFStats())
}

// Unlock handles POST /admin/security/unlock
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req IdentifierRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identifier := normalizeIdentifier(req.Identifier)
	wasLocked := h.service.UnlockAccount(identifier)
	h.audit(r, "unlock_account", map[string]string{
		"identifier": pkglogger.SanitizedIdentifier(identifier),
		"was_locked": strconv.FormatBool(wasLocked),
	})

	pkghttp.WriteJSON(w, http.StatusOK, UnlockResponse{Identifier: identifier, WasLocked: wasLocked})
}

// ClearEvents handles DELETE /admin/security/events
func (h *AdminHandler) ClearEvents(w http.ResponseWriter, r *http.Request) {
	h.service.ClearSecurityEvents()
	h.audit(r, "clear_security_events", nil)
	w.WriteHeader(http.StatusNoContent)
}

// ClearCSRFTokens handles DELETE /admin/security/csrf
func (h *AdminHandler) ClearCSRFTokens(w http.ResponseWriter, r *http.Request) {
	removed := h.service.ClearCSRFTokens()
	h.audit(r, "clear_csrf_tokens", map[string]string{"removed": strconv.Itoa(removed)})
	pkghttp.WriteJSON(w, http.StatusOK, ClearedResponse{Removed: removed})
}

// ClearCSRFSession handles DELETE /admin/security/csrf/sessions/{sessionID}
func (h *AdminHandler) ClearCSRFSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "session id missing")
		return
	}

	removed := h.service.ClearCSRFSession(sessionID)
	h.audit(r, "clear_csrf_session", map[string]string{
		"session_id": sessionID,
		"removed":    strconv.Itoa(removed),
	})
	pkghttp.WriteJSON(w, http.StatusOK, ClearedResponse{Removed: removed})
}

// GetSettings handles GET /admin/security/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, newSettingsPayload(h.service.Settings()))
}

// UpdateSettings handles PUT /admin/security/settings
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SecuritySettingsPayload
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	settings, err := req.toModel()
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.UpdateSettings(settings); err != nil {
		h.writeConfigError(w, err)
		return
	}

	h.audit(r, "update_security_settings", nil)
	pkghttp.WriteJSON(w, http.StatusOK, newSettingsPayload(h.service.Settings()))
}

// GetRateLimitConfig handles GET /admin/security/rate-limit
func (h *AdminHandler) GetRateLimitConfig(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, newRateLimitPayload(h.service.RateLimitConfig()))
}

// UpdateRateLimitConfig handles PUT /admin/security/rate-limit
// max_delay and delay_step may be omitted to keep their current values.
func (h *AdminHandler) UpdateRateLimitConfig(w http.ResponseWriter, r *http.Request) {
	var req RateLimitConfigPayload
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	cfg, err := req.toModel(h.service.RateLimitConfig())
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.UpdateRateLimitConfig(cfg); err != nil {
		h.writeConfigError(w, err)
		return
	}

	h.audit(r, "update_rate_limit_config", map[string]string{
		"max_attempts": strconv.Itoa(cfg.MaxAttempts),
		"window":       cfg.Window.String(),
	})
	pkghttp.WriteJSON(w, http.StatusOK, newRateLimitPayload(h.service.RateLimitConfig()))
}

func (h *AdminHandler) writeConfigError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrInvalidConfig) {
		pkghttp.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, "invalid_config", "Configuration rejected", err.Error())
		return
	}
	h.logger.Error("failed to update security configuration", slog.Any("error", err))
	pkghttp.WriteInternalError(w, "Failed to update configuration")
}

func (h *AdminHandler) audit(r *http.Request, action string, metadata map[string]string) {
	actorID := ""
	if claims := auth.GetUserFromContext(r); claims != nil {
		actorID = claims.UserID
	}
	h.auditLogger.LogAdminAction(action, actorID, pkghttp.ResolveClient(r, h.ipConfig).IP, metadata)
}

// parseLimit reads ?limit=N; anything outside 1-200 means no limit
func parseLimit(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			return n
		}
	}
	return 0
}

// tail keeps the last n items, or all of them when n is 0
func tail[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}

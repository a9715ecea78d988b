package handlers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// LoginSecurity is the part of the security service the login flow talks to
type LoginSecurity interface {
	CheckRateLimit(identifier string) models.RateLimitDecision
	RecordFailedLogin(identifier, reason, context string) models.RateLimitDecision
	RecordSuccessfulLogin(identifier string)
	ValidatePassword(password string) error
}

// SecurityHandler exposes rate limiting and the password policy to the login flow
type SecurityHandler struct {
	service  LoginSecurity
	timing   *auth.TimingDelay
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(service LoginSecurity, timing *auth.TimingDelay, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{
		service:  service,
		timing:   timing,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// normalizeIdentifier lowercases and trims so "Bob@x.io " and "bob@x.io" share a counter
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// CheckLogin handles POST /security/login/check
func (h *SecurityHandler) CheckLogin(w http.ResponseWriter, r *http.Request) {
	var req IdentifierRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	decision := h.service.CheckRateLimit(normalizeIdentifier(req.Identifier))
	writeDecision(w, decision)
}

// RecordFailure handles POST /security/login/failure. The response is padded
// so failures take about the same time regardless of their cause.
func (h *SecurityHandler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req LoginFailureRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	context := req.Context
	if context == "" {
		context = pkghttp.ResolveClient(r, h.ipConfig).Fingerprint
	}

	identifier := normalizeIdentifier(req.Identifier)
	decision := h.service.RecordFailedLogin(identifier, req.Reason, context)

	h.logger.Info("failed login recorded",
		slog.String("identifier", pkglogger.SanitizedIdentifier(identifier)),
		slog.Int("failed_attempts", decision.FailedAttempts),
		slog.Bool("allowed", decision.Allowed))

	if h.timing != nil {
		h.timing.WaitFrom(r.Context(), start, false)
	}
	writeDecision(w, decision)
}

// RecordSuccess handles POST /security/login/success
func (h *SecurityHandler) RecordSuccess(w http.ResponseWriter, r *http.Request) {
	var req IdentifierRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	h.service.RecordSuccessfulLogin(normalizeIdentifier(req.Identifier))
	w.WriteHeader(http.StatusNoContent)
}

// CheckPassword handles POST /security/password/check
func (h *SecurityHandler) CheckPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordCheckRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ValidatePassword(req.Password)
	if err != nil && !errors.Is(err, models.ErrWeakPassword) {
		h.logger.Error("password check failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to check password")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, PasswordCheckResponse{Valid: err == nil})
}

// writeDecision maps a denial to 429 with Retry-After; an allowed decision is 200
func writeDecision(w http.ResponseWriter, decision models.RateLimitDecision) {
	if decision.Allowed {
		pkghttp.WriteJSON(w, http.StatusOK, newDecisionResponse(decision))
		return
	}

	if decision.ResetTime != nil {
		seconds := math.Ceil(time.Until(*decision.ResetTime).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(seconds)))
	}
	pkghttp.WriteJSON(w, http.StatusTooManyRequests, newDecisionResponse(decision))
}

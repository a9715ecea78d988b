package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// SecurityAuditEvent is the log shape of one security event
type SecurityAuditEvent struct {
	ID        uint64
	EventType string
	Severity  string
	Timestamp time.Time
	Data      map[string]interface{}
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSecurityEvent writes one audit line per security event. High severity
// events are logged at warn level.
func (al *AuditLogger) LogSecurityEvent(event SecurityAuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.Uint64("event_id", event.ID),
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity),
		slog.String("timestamp", event.Timestamp.UTC().Format(time.RFC3339)),
	}

	keys := make([]string, 0, len(event.Data))
	for key := range event.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := event.Data[key]
		if key == "identifier" {
			val = SanitizedIdentifier(fmt.Sprint(val))
		}
		attrs = append(attrs, slog.Any(key, val))
	}

	level := slog.LevelInfo
	if event.Severity == "high" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAdminAction logs privileged operations issued from the admin panel
func (al *AuditLogger) LogAdminAction(action, actorID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "admin"),
		slog.String("action", action),
		slog.String("actor_id", actorID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

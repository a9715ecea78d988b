package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
)

// SecurityEventArchive is the write-only durable mirror of the event log
type SecurityEventArchive interface {
	Create(ctx context.Context, event *models.SecurityEvent) (uuid.UUID, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// AuditArchiveService mirrors security events into the archive in the
// background. The archive is never read back into the in-memory log.
type AuditArchiveService struct {
	repo   SecurityEventArchive
	queue  *eventQueue
	logger *slog.Logger
}

// NewAuditArchiveService creates a new AuditArchiveService and starts its writer
func NewAuditArchiveService(repo SecurityEventArchive, bufferSize int, logger *slog.Logger) *AuditArchiveService {
	s := &AuditArchiveService{
		repo:   repo,
		logger: logger,
	}
	s.queue = newEventQueue("audit_archive", bufferSize, 5*time.Second, s.write, logger)
	return s
}

// Archive queues event for writing and reports whether it was accepted
func (s *AuditArchiveService) Archive(event models.SecurityEvent) bool {
	return s.queue.enqueue(event)
}

func (s *AuditArchiveService) write(ctx context.Context, event models.SecurityEvent) error {
	id, err := s.repo.Create(ctx, &event)
	if err != nil {
		return fmt.Errorf("archive security event: %w", err)
	}
	s.logger.Debug("security event archived",
		slog.String("archive_id", id.String()),
		slog.Uint64("event_id", event.ID))
	return nil
}

// Purge deletes archived events older than retentionDays
func (s *AuditArchiveService) Purge(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	deleted, err := s.repo.DeleteOlderThan(ctx, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("purge security event archive: %w", err)
	}
	return deleted, nil
}

// Close stops accepting events and waits for queued ones to be written
func (s *AuditArchiveService) Close(ctx context.Context) error {
	return s.queue.close(ctx)
}
